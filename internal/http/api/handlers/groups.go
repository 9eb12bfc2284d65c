package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/lifecycle"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
)

// GroupHandler serves group buying endpoints.
type GroupHandler struct {
	svc *lifecycle.Service
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(svc *lifecycle.Service) *GroupHandler {
	return &GroupHandler{svc: svc}
}

// List returns groups filtered by status, product, creator or name.
func (h *GroupHandler) List(c *gin.Context) {
	page, errList := h.svc.ListGroups(c.Request.Context(), lifecycle.ListFilter{
		Status:    models.GroupStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		ProductID: queryUint(c, "productId"),
		CreatedBy: queryUint(c, "createdBy"),
		Search:    c.Query("search"),
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
	})
	if errList != nil {
		WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one group with its members.
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, errGet := h.svc.GetGroup(c.Request.Context(), id)
	if errGet != nil {
		WriteError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListMine returns the caller's memberships.
func (h *GroupHandler) ListMine(c *gin.Context) {
	views, errList := h.svc.ListUserGroups(c.Request.Context(), CurrentUser(c).ID, queryBool(c, "activeOnly"))
	if errList != nil {
		WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": views})
}

// Create opens a group for an approved product.
func (h *GroupHandler) Create(c *gin.Context) {
	var body lifecycle.CreateInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	view, errCreate := h.svc.CreateGroup(c.Request.Context(), body, CurrentUser(c).ID)
	if errCreate != nil {
		WriteError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// paymentRequest names the channel used for a charge.
type paymentRequest struct {
	PaymentMethod string `json:"paymentMethod"` // ORANGE_MONEY, MOOV_MONEY, LIGDICASH or CARD.
}

// Join charges the deposit and adds the caller to the group.
func (h *GroupHandler) Join(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body paymentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	result, errJoin := h.svc.JoinGroup(c.Request.Context(), id, CurrentUser(c).ID, body.PaymentMethod)
	if errJoin != nil {
		WriteError(c, errJoin)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Leave removes the caller from an open group.
func (h *GroupHandler) Leave(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, errLeave := h.svc.LeaveGroup(c.Request.Context(), id, CurrentUser(c).ID)
	if errLeave != nil {
		WriteError(c, errLeave)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PayFinal settles the caller's remaining balance on a closed group.
func (h *GroupHandler) PayFinal(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body paymentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	result, errPay := h.svc.PayFinalBalance(c.Request.Context(), id, CurrentUser(c).ID, body.PaymentMethod)
	if errPay != nil {
		WriteError(c, errPay)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Update patches an open group. Only its creator or an administrator may.
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body lifecycle.GroupPatch
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	if !h.authorizeOwner(c, id) {
		return
	}
	view, errUpdate := h.svc.UpdateGroup(c.Request.Context(), id, body, CurrentUser(c).ID)
	if errUpdate != nil {
		WriteError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Cancel withdraws an open group. Only its creator or an administrator may.
func (h *GroupHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !h.authorizeOwner(c, id) {
		return
	}
	view, errCancel := h.svc.CancelGroup(c.Request.Context(), id, CurrentUser(c).ID)
	if errCancel != nil {
		WriteError(c, errCancel)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GroupHandler) authorizeOwner(c *gin.Context, groupID uint64) bool {
	user := CurrentUser(c)
	if user.Role == models.UserRoleAdmin {
		return true
	}
	detail, errGet := h.svc.GetGroup(c.Request.Context(), groupID)
	if errGet != nil {
		WriteError(c, errGet)
		return false
	}
	if detail.CreatedBy != user.ID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the group creator may change it", "kind": "forbidden"})
		return false
	}
	return true
}
