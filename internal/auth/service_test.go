package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
)

func newTestService(t *testing.T, now *time.Time) (*Service, *notify.Recorder) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	recorder := &notify.Recorder{}
	svc := New(conn, Options{
		Secret:   "test-secret",
		Expiry:   time.Hour,
		Notifier: recorder,
		Now:      func() time.Time { return *now },
	})
	return svc, recorder
}

func validInput() RegisterInput {
	return RegisterInput{
		Email:     "Awa@Example.com",
		Phone:     "0102030405",
		Password:  "password123",
		FirstName: "Awa",
		LastName:  "Kone",
	}
}

func TestRegisterVerifyLogin(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, recorder := newTestService(t, &now)
	ctx := context.Background()

	profile, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Email != "awa@example.com" || profile.Phone != "+2250102030405" || profile.Role != models.UserRoleMember {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.IsVerified {
		t.Fatalf("expected unverified user")
	}

	codes := recorder.ByKind(notify.KindOTP)
	if len(codes) != 1 {
		t.Fatalf("expected one code, got %d", len(codes))
	}
	code, _ := codes[0].Data["code"].(string)

	if code != "000000" {
		if err := svc.VerifyOTP(ctx, profile.ID, "000000"); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for wrong code, got %v", err)
		}
	}
	now = now.Add(5 * time.Minute)
	if err := svc.VerifyOTP(ctx, profile.ID, code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.ResendOTP(ctx, profile.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on resend after verify, got %v", err)
	}

	session, err := svc.Login(ctx, "+2250102030405", "password123")
	if err != nil {
		t.Fatalf("login by phone: %v", err)
	}
	if !session.User.IsVerified || session.AccessToken == "" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}
	if _, err := svc.Login(ctx, "awa@example.com", "password123"); err != nil {
		t.Fatalf("login by email: %v", err)
	}

	user, err := svc.Authenticate(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != profile.ID {
		t.Fatalf("expected user %d, got %d", profile.ID, user.ID)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.Authenticate(ctx, session.AccessToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
}

func TestRegisterRejections(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &now)
	ctx := context.Background()

	cases := map[string]func(in *RegisterInput){
		"bad email":      func(in *RegisterInput) { in.Email = "not-an-email" },
		"bad phone":      func(in *RegisterInput) { in.Phone = "12345" },
		"short password": func(in *RegisterInput) { in.Password = "short" },
		"short name":     func(in *RegisterInput) { in.FirstName = "A" },
		"admin role":     func(in *RegisterInput) { in.Role = models.UserRoleAdmin },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		if _, err := svc.Register(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	dup := validInput()
	dup.Email = "other@example.com"
	if _, err := svc.Register(ctx, dup); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on duplicate phone, got %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &now)
	ctx := context.Background()

	profile, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "awa@example.com", "wrong-password"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
	if err := svc.db.Model(&models.User{}).Where("id = ?", profile.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := svc.Login(ctx, "awa@example.com", "password123"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for disabled user, got %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.EnsureAdmin(ctx, "admin@example.com", "", "admin-password"); err != nil {
			t.Fatalf("ensure admin: %v", err)
		}
	}
	var admins []models.User
	if err := svc.db.Where("role = ?", models.UserRoleAdmin).Find(&admins).Error; err != nil {
		t.Fatalf("list admins: %v", err)
	}
	if len(admins) != 1 || !admins[0].IsVerified {
		t.Fatalf("expected one verified admin, got %+v", admins)
	}
	if _, err := svc.Login(ctx, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &now)
	ctx := context.Background()

	profile, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "awa@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.RefreshToken == "" || !session.RefreshExpiresAt.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected refresh token in session %+v", session)
	}

	var stored models.RefreshToken
	if err := svc.db.Where("user_id = ?", profile.ID).Take(&stored).Error; err != nil {
		t.Fatalf("load refresh token: %v", err)
	}
	if stored.TokenHash == session.RefreshToken {
		t.Fatalf("refresh token stored in clear")
	}

	// Access token expired, refresh token still live.
	now = now.Add(3 * time.Hour)
	if _, err := svc.Authenticate(ctx, session.AccessToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected expired access token, got %v", err)
	}
	fresh, err := svc.RefreshToken(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !fresh.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected access expiry %s", fresh.ExpiresAt)
	}
	user, err := svc.Authenticate(ctx, fresh.AccessToken)
	if err != nil || user.ID != profile.ID {
		t.Fatalf("authenticate refreshed token: user=%v err=%v", user, err)
	}

	if _, err := svc.RefreshToken(ctx, "not-a-token"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}

	if err := svc.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if _, err := svc.RefreshToken(ctx, session.RefreshToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

func TestRefreshTokenExpires(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &now)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "awa@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	now = now.Add(31 * 24 * time.Hour)
	if _, err := svc.RefreshToken(ctx, session.RefreshToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired refresh token, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	svc, recorder := newTestService(t, &now)
	ctx := context.Background()

	profile, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "awa@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	missing, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil || missing != 0 {
		t.Fatalf("expected silent miss, got id=%d err=%v", missing, err)
	}

	userID, err := svc.RequestPasswordReset(ctx, "0102030405")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if userID != profile.ID {
		t.Fatalf("expected user %d, got %d", profile.ID, userID)
	}
	codes := recorder.ByKind(notify.KindOTP)
	if len(codes) != 2 {
		t.Fatalf("expected registration and reset codes, got %d", len(codes))
	}
	code, _ := codes[1].Data["code"].(string)

	if err := svc.ResetPassword(ctx, userID, code, "short"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
	if code != "000000" {
		if err := svc.ResetPassword(ctx, userID, "000000", "new-password-1"); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for wrong code, got %v", err)
		}
	}
	if err := svc.ResetPassword(ctx, userID, code, "new-password-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.ResetPassword(ctx, userID, code, "new-password-2"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected replayed code to be rejected, got %v", err)
	}

	if _, err := svc.RefreshToken(ctx, session.RefreshToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected refresh tokens revoked, got %v", err)
	}
	if _, err := svc.Login(ctx, "awa@example.com", "password123"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.Login(ctx, "awa@example.com", "new-password-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
