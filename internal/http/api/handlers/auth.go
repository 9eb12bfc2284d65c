package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/auth"
)

// AuthHandler serves registration, OTP verification, sessions and password resets.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register creates an unverified account and sends its OTP.
func (h *AuthHandler) Register(c *gin.Context) {
	var body auth.RegisterInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	profile, errRegister := h.svc.Register(c.Request.Context(), body)
	if errRegister != nil {
		WriteError(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": profile})
}

// verifyOTPRequest carries the code sent at registration.
type verifyOTPRequest struct {
	UserID uint64 `json:"userId"` // Account being verified.
	Code   string `json:"code"`   // Six digit code.
}

// VerifyOTP marks the account verified when the code matches.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var body verifyOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	if body.UserID == 0 || strings.TrimSpace(body.Code) == "" {
		badRequest(c, "userId and code are required")
		return
	}
	if errVerify := h.svc.VerifyOTP(c.Request.Context(), body.UserID, strings.TrimSpace(body.Code)); errVerify != nil {
		WriteError(c, errVerify)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// resendOTPRequest names the account needing a fresh code.
type resendOTPRequest struct {
	UserID uint64 `json:"userId"`
}

// ResendOTP sends a new verification code.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var body resendOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.UserID == 0 {
		badRequest(c, "userId is required")
		return
	}
	if errResend := h.svc.ResendOTP(c.Request.Context(), body.UserID); errResend != nil {
		WriteError(c, errResend)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// loginRequest accepts an email or phone number as identifier.
type loginRequest struct {
	Identifier string `json:"identifier"` // Email or phone.
	Email      string `json:"email"`      // Alternative to identifier.
	Phone      string `json:"phone"`      // Alternative to identifier.
	Password   string `json:"password"`   // Plain password.
}

// Login returns an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	identifier := strings.TrimSpace(body.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(body.Email)
	}
	if identifier == "" {
		identifier = strings.TrimSpace(body.Phone)
	}
	if identifier == "" || body.Password == "" {
		badRequest(c, "identifier and password are required")
		return
	}
	session, errLogin := h.svc.Login(c.Request.Context(), identifier, body.Password)
	if errLogin != nil {
		WriteError(c, errLogin)
		return
	}
	c.JSON(http.StatusOK, session)
}

// refreshRequest carries a refresh token issued at login.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh mints a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.RefreshToken) == "" {
		badRequest(c, "refreshToken is required")
		return
	}
	token, errRefresh := h.svc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if errRefresh != nil {
		WriteError(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, token)
}

// Logout revokes a refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var body refreshRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.RefreshToken) == "" {
		badRequest(c, "refreshToken is required")
		return
	}
	if errLogout := h.svc.Logout(c.Request.Context(), body.RefreshToken); errLogout != nil {
		WriteError(c, errLogout)
		return
	}
	c.Status(http.StatusNoContent)
}

// requestResetRequest names the account by email or phone.
type requestResetRequest struct {
	Identifier string `json:"identifier"`
}

// RequestPasswordReset sends a reset code when the account exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var body requestResetRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.Identifier) == "" {
		badRequest(c, "identifier is required")
		return
	}
	userID, errRequest := h.svc.RequestPasswordReset(c.Request.Context(), body.Identifier)
	if errRequest != nil {
		WriteError(c, errRequest)
		return
	}
	resp := gin.H{"message": "if the account exists, a reset code has been sent"}
	if userID != 0 {
		resp["userId"] = userID
	}
	c.JSON(http.StatusOK, resp)
}

// resetPasswordRequest carries the reset code and the new password.
type resetPasswordRequest struct {
	UserID      uint64 `json:"userId"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password and signs the account out everywhere.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	if body.UserID == 0 || strings.TrimSpace(body.Code) == "" {
		badRequest(c, "userId and code are required")
		return
	}
	if errReset := h.svc.ResetPassword(c.Request.Context(), body.UserID, body.Code, body.NewPassword); errReset != nil {
		WriteError(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": auth.NewProfile(user)})
}
