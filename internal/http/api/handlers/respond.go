package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

// ContextUserKey is the gin context key holding the authenticated *models.User.
const ContextUserKey = "user"

// CurrentUser returns the user set by the auth middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a JSON error body. Untyped errors become 500s
// and are logged; their text never reaches the client.
func WriteError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		msg := appErr.Message
		if msg == "" {
			msg = appErr.Kind.String()
		}
		c.AbortWithStatusJSON(StatusFor(appErr.Kind), gin.H{"error": msg, "kind": appErr.Kind.String()})
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": apperr.KindInternal.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": apperr.KindValidation.String()})
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	v, errParse := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if errParse != nil {
		return 0
	}
	return v
}

func queryUint(c *gin.Context, name string) uint64 {
	v, errParse := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if errParse != nil {
		return 0
	}
	return v
}

func queryBool(c *gin.Context, name string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(name))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
