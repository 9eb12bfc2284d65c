package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
)

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	inbox *notify.StoreNotifier
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(inbox *notify.StoreNotifier) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// notificationView is the JSON shape of a stored notification.
type notificationView struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newNotificationView(n *models.Notification) notificationView {
	view := notificationView{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if len(n.Data) > 0 {
		view.Data = json.RawMessage(n.Data)
	}
	return view
}

// List returns the newest notifications of the caller.
func (h *NotificationHandler) List(c *gin.Context) {
	rows, errList := h.inbox.List(c.Request.Context(), CurrentUser(c).ID, queryBool(c, "unreadOnly"), queryInt(c, "limit"))
	if errList != nil {
		WriteError(c, errList)
		return
	}
	out := make([]notificationView, 0, len(rows))
	for i := range rows {
		out = append(out, newNotificationView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// MarkRead flags one notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errMark := h.inbox.MarkRead(c.Request.Context(), CurrentUser(c).ID, id); errMark != nil {
		if errors.Is(errMark, notify.ErrNotificationNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "notification not found", "kind": "not_found"})
			return
		}
		WriteError(c, errMark)
		return
	}
	c.Status(http.StatusNoContent)
}
