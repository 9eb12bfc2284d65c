// Package auth registers marketplace users, verifies them with one-time
// codes and issues access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	minPasswordLength    = 8
	minNameLength        = 2
	refreshTokenBytes    = 32
	defaultRefreshExpiry = 30 * 24 * time.Hour
)

var phonePattern = regexp.MustCompile(`^(\+225)?[0-9]{10}$`)

// Options configures a Service.
type Options struct {
	Secret        string
	Expiry        time.Duration
	RefreshExpiry time.Duration
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Service implements account registration and login.
type Service struct {
	db            *gorm.DB
	secret        string
	expiry        time.Duration
	refreshExpiry time.Duration
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

// New constructs a Service.
func New(conn *gorm.DB, opts Options) *Service {
	s := &Service{
		db:            conn,
		secret:        opts.Secret,
		expiry:        opts.Expiry,
		refreshExpiry: opts.RefreshExpiry,
		dispatcher:    notify.NewDispatcher(opts.Notifier, opts.NotifyTimeout),
		now:           opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.expiry <= 0 {
		s.expiry = 7 * 24 * time.Hour
	}
	if s.refreshExpiry <= 0 {
		s.refreshExpiry = defaultRefreshExpiry
	}
	return s
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Password  string          `json:"password"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Role      models.UserRole `json:"role"`
}

// Profile is the public view of a user.
type Profile struct {
	ID          uint64          `json:"id"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone,omitempty"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Role        models.UserRole `json:"role"`
	IsVerified  bool            `json:"isVerified"`
	LastLoginAt *time.Time      `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Session is returned by a successful login.
type Session struct {
	User             Profile   `json:"user"`
	AccessToken      string    `json:"accessToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// AccessToken is a fresh access token minted from a refresh token.
type AccessToken struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewProfile builds the public view of u.
func NewProfile(u *models.User) Profile {
	p := Profile{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		IsVerified:  u.IsVerified,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	return p
}

// Register creates an unverified account and sends its first code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	const op = "auth.Register"
	email := strings.ToLower(strings.TrimSpace(in.Email))
	phone := strings.TrimSpace(in.Phone)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	role := in.Role
	if role == "" {
		role = models.UserRoleMember
	}

	if _, errAddr := mail.ParseAddress(email); errAddr != nil || !strings.Contains(email, "@") {
		return nil, apperr.Validation(op, "invalid email")
	}
	if !phonePattern.MatchString(phone) {
		return nil, apperr.Validation(op, "invalid phone number (format: +225XXXXXXXXXX)")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.Validation(op, "password must be at least %d characters", minPasswordLength)
	}
	if len([]rune(firstName)) < minNameLength || len([]rune(lastName)) < minNameLength {
		return nil, apperr.Validation(op, "first and last name must be at least %d characters", minNameLength)
	}
	if role != models.UserRoleMember && role != models.UserRoleSupplier {
		return nil, apperr.Validation(op, "role must be MEMBER or SUPPLIER")
	}
	phone = normalizePhone(phone)

	var existing int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR phone = ?", email, phone).
		Count(&existing).Error; errCount != nil {
		return nil, fmt.Errorf("%s: check existing: %w", op, errCount)
	}
	if existing > 0 {
		return nil, apperr.Conflict(op, "email or phone already registered")
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, fmt.Errorf("%s: %w", op, errHash)
	}
	secret, errSecret := security.NewOTPSecret(email)
	if errSecret != nil {
		return nil, fmt.Errorf("%s: %w", op, errSecret)
	}

	now := s.now()
	user := models.User{
		Email:        email,
		Phone:        &phone,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		IsActive:     true,
		OTPSecret:    secret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, apperr.Conflict(op, "email or phone already registered")
		}
		return nil, fmt.Errorf("%s: insert user: %w", op, errCreate)
	}

	log.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	s.sendCode(ctx, &user, "Verification code")

	profile := NewProfile(&user)
	return &profile, nil
}

// VerifyOTP marks the user verified when code is current.
func (s *Service) VerifyOTP(ctx context.Context, userID uint64, code string) error {
	const op = "auth.VerifyOTP"
	user, errUser := s.loadUser(ctx, op, userID)
	if errUser != nil {
		return errUser
	}
	if user.IsVerified {
		return nil
	}
	if !security.ValidateOTP(strings.TrimSpace(code), user.OTPSecret, s.now()) {
		return apperr.Validation(op, "invalid or expired code")
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"is_verified": true, "updated_at": s.now()}).Error; errUpdate != nil {
		return fmt.Errorf("%s: mark verified: %w", op, errUpdate)
	}
	log.WithField("user_id", userID).Info("user verified")
	return nil
}

// ResendOTP sends a fresh code to an unverified user.
func (s *Service) ResendOTP(ctx context.Context, userID uint64) error {
	const op = "auth.ResendOTP"
	user, errUser := s.loadUser(ctx, op, userID)
	if errUser != nil {
		return errUser
	}
	if user.IsVerified {
		return apperr.InvalidState(op, "user already verified")
	}
	s.sendCode(ctx, user, "Verification code")
	return nil
}

// Login authenticates by email or phone and issues an access token.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	const op = "auth.Login"
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.Validation(op, "identifier and password are required")
	}

	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("email = ? OR phone = ? OR phone = ?", strings.ToLower(identifier), identifier, normalizePhone(identifier)).
		Take(&user).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, op, "invalid credentials")
	}
	if errFind != nil {
		return nil, fmt.Errorf("%s: find user: %w", op, errFind)
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, apperr.New(apperr.KindUnauthorized, op, "invalid credentials")
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, op, "account disabled")
	}

	now := s.now()
	token, errToken := security.IssueUserToken(s.secret, user.ID, string(user.Role), s.expiry, now)
	if errToken != nil {
		return nil, fmt.Errorf("%s: %w", op, errToken)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"last_login_at": now, "updated_at": now}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("failed to record login time")
	}
	user.LastLoginAt = &now

	refresh, errRefresh := security.GenerateRandomString(refreshTokenBytes)
	if errRefresh != nil {
		return nil, fmt.Errorf("%s: %w", op, errRefresh)
	}
	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: security.HashToken(refresh),
		ExpiresAt: now.Add(s.refreshExpiry),
		CreatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return nil, fmt.Errorf("%s: store refresh token: %w", op, errCreate)
	}

	return &Session{
		User:             NewProfile(&user),
		AccessToken:      token,
		ExpiresAt:        now.Add(s.expiry),
		RefreshToken:     refresh,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// RefreshToken exchanges a live refresh token for a new access token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AccessToken, error) {
	const op = "auth.RefreshToken"
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apperr.Validation(op, "refresh token is required")
	}
	now := s.now()

	var record models.RefreshToken
	errFind := s.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", security.HashToken(refreshToken), now).
		Take(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, op, "invalid or expired refresh token")
	}
	if errFind != nil {
		return nil, fmt.Errorf("%s: find refresh token: %w", op, errFind)
	}

	var user models.User
	if errUser := s.db.WithContext(ctx).Where("id = ?", record.UserID).Take(&user).Error; errUser != nil {
		if errors.Is(errUser, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindUnauthorized, op, "invalid or expired refresh token")
		}
		return nil, fmt.Errorf("%s: load user: %w", op, errUser)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, op, "account disabled")
	}

	token, errToken := security.IssueUserToken(s.secret, user.ID, string(user.Role), s.expiry, now)
	if errToken != nil {
		return nil, fmt.Errorf("%s: %w", op, errToken)
	}
	return &AccessToken{AccessToken: token, ExpiresAt: now.Add(s.expiry)}, nil
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return apperr.Validation(op, "refresh token is required")
	}
	if errDelete := s.db.WithContext(ctx).
		Where("token_hash = ?", security.HashToken(refreshToken)).
		Delete(&models.RefreshToken{}).Error; errDelete != nil {
		return fmt.Errorf("%s: revoke refresh token: %w", op, errDelete)
	}
	return nil
}

// RequestPasswordReset sends a reset code to the account matching identifier.
// It returns the account id, or zero when no account matches.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) (uint64, error) {
	const op = "auth.RequestPasswordReset"
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, apperr.Validation(op, "email or phone is required")
	}

	var user models.User
	errFind := s.db.WithContext(ctx).
		Where("email = ? OR phone = ? OR phone = ?", strings.ToLower(identifier), identifier, normalizePhone(identifier)).
		Take(&user).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if errFind != nil {
		return 0, fmt.Errorf("%s: find user: %w", op, errFind)
	}
	if user.OTPSecret == "" {
		secret, errSecret := security.NewOTPSecret(user.Email)
		if errSecret != nil {
			return 0, fmt.Errorf("%s: %w", op, errSecret)
		}
		if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("otp_secret", secret).Error; errUpdate != nil {
			return 0, fmt.Errorf("%s: store otp secret: %w", op, errUpdate)
		}
		user.OTPSecret = secret
	}

	log.WithField("user_id", user.ID).Info("password reset requested")
	s.sendCode(ctx, &user, "Password reset code")
	return user.ID, nil
}

// ResetPassword replaces the password when code is current, rotates the code
// secret so the code cannot be replayed, and revokes every refresh token.
func (s *Service) ResetPassword(ctx context.Context, userID uint64, code, newPassword string) error {
	const op = "auth.ResetPassword"
	if len(newPassword) < minPasswordLength {
		return apperr.Validation(op, "password must be at least %d characters", minPasswordLength)
	}
	user, errUser := s.loadUser(ctx, op, userID)
	if errUser != nil {
		return errUser
	}
	if user.OTPSecret == "" || !security.ValidateOTP(strings.TrimSpace(code), user.OTPSecret, s.now()) {
		return apperr.Validation(op, "invalid or expired code")
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return fmt.Errorf("%s: %w", op, errHash)
	}
	secret, errSecret := security.NewOTPSecret(user.Email)
	if errSecret != nil {
		return fmt.Errorf("%s: %w", op, errSecret)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{"password_hash": hash, "otp_secret": secret, "updated_at": s.now()}).Error; errUpdate != nil {
			return fmt.Errorf("update password: %w", errUpdate)
		}
		if errRevoke := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; errRevoke != nil {
			return fmt.Errorf("revoke refresh tokens: %w", errRevoke)
		}
		return nil
	})
	if errTx != nil {
		return fmt.Errorf("%s: %w", op, errTx)
	}
	log.WithField("user_id", userID).Info("password reset")
	return nil
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	const op = "auth.Authenticate"
	claims, errParse := security.ParseUserToken(s.secret, token, s.now)
	if errParse != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, op, errParse, "invalid token")
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", claims.UserID).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindUnauthorized, op, "user not found")
		}
		return nil, fmt.Errorf("%s: load user: %w", op, errFind)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, op, "account disabled")
	}
	return &user, nil
}

// Me returns the profile of userID.
func (s *Service) Me(ctx context.Context, userID uint64) (*Profile, error) {
	user, errUser := s.loadUser(ctx, "auth.Me", userID)
	if errUser != nil {
		return nil, errUser
	}
	profile := NewProfile(user)
	return &profile, nil
}

// EnsureAdmin creates the bootstrap administrator when no user holds email.
func (s *Service) EnsureAdmin(ctx context.Context, email, phone, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; errCount != nil {
		return fmt.Errorf("auth: ensure admin: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("auth: ensure admin: %w", errHash)
	}
	now := s.now()
	admin := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "GroupBuy",
		Role:         models.UserRoleAdmin,
		IsVerified:   true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone = strings.TrimSpace(phone); phone != "" {
		phone = normalizePhone(phone)
		admin.Phone = &phone
	}
	if errCreate := s.db.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("auth: create admin: %w", errCreate)
	}
	log.WithField("email", email).Info("bootstrap admin created")
	return nil
}

func (s *Service) loadUser(ctx context.Context, op string, userID uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "user %d not found", userID)
		}
		return nil, fmt.Errorf("%s: load user: %w", op, errFind)
	}
	return &user, nil
}

func (s *Service) sendCode(ctx context.Context, user *models.User, title string) {
	code, errCode := security.OTPCode(user.OTPSecret, s.now())
	if errCode != nil {
		log.WithError(errCode).WithField("user_id", user.ID).Error("failed to generate verification code")
		return
	}
	s.dispatcher.Send(ctx, notify.Message{
		UserID: user.ID,
		Kind:   notify.KindOTP,
		Title:  title,
		Body:   fmt.Sprintf("Your code is %s. It expires in %d minutes.", code, int(security.OTPPeriod/time.Minute)),
		Data:   map[string]any{"code": code},
	})
}

func normalizePhone(phone string) string {
	if phone != "" && !strings.HasPrefix(phone, "+225") {
		return "+225" + phone
	}
	return phone
}
