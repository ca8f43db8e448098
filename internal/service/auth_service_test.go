package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAuthServiceForTest(t *testing.T, maxActive int) (*AuthService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Tenant{}, &domain.User{}, &domain.RefreshCredential{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	creds := repository.NewCredentialRepository(db)
	jwtMgr := security.NewJWTManager("supportd", "supportd-api", "0123456789abcdef0123456789abcdef")
	tokens := NewTokenService(jwtMgr, creds, testPepper, 15*time.Minute, 720*time.Hour)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(db, users, creds, tokens, jwtMgr, maxActive, log), db
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		CompanyName: "Acme Support",
		Name:        "Ada",
		Email:       email,
		Password:    "correct horse battery",
	}
}

func TestRegisterCreatesTenantAdminAndTokens(t *testing.T) {
	svc, db := newAuthServiceForTest(t, 0)

	res, err := svc.Register(registerInput("ada@example.com"), "cli/1.0", "10.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Role != domain.RoleAdmin || !res.User.Active {
		t.Fatalf("expected active admin user, got %+v", res.User)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected token pair on register")
	}

	var tenant domain.Tenant
	if err := db.First(&tenant, res.User.TenantID).Error; err != nil {
		t.Fatalf("expected tenant row: %v", err)
	}
	if tenant.Name != "Acme Support" {
		t.Fatalf("unexpected tenant %+v", tenant)
	}

	var credCount int64
	db.Model(&domain.RefreshCredential{}).Where("user_id = ?", res.User.ID).Count(&credCount)
	if credCount != 1 {
		t.Fatalf("expected 1 stored credential, got %d", credCount)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	if _, err := svc.Register(registerInput("ada@example.com"), "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(registerInput("ADA@example.com"), "", "")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for case-folded duplicate, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	cases := []RegisterInput{
		{CompanyName: "", Name: "A", Email: "a@example.com", Password: "long enough"},
		{CompanyName: "Acme", Name: "A", Email: "", Password: "long enough"},
		{CompanyName: "Acme", Name: "A", Email: "not-an-email", Password: "long enough"},
		{CompanyName: "Acme", Name: "A", Email: "a@example.com", Password: "short"},
	}
	for i, in := range cases {
		if _, err := svc.Register(in, "", ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestLoginUnknownEmailAndWrongPasswordIndistinguishable(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	if _, err := svc.Register(registerInput("ada@example.com"), "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errUnknown := svc.Login("nobody@example.com", "whatever pass", "", "")
	_, errWrong := svc.Login("ada@example.com", "wrong password", "", "")
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatal("the two failure modes must present the same error")
	}
}

func TestLoginUpdatesLastLogin(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	if _, err := svc.Register(registerInput("ada@example.com"), "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := svc.Login("ada@example.com", "correct horse battery", "cli/1.0", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.LastLoginAt == nil {
		t.Fatal("expected last login timestamp set")
	}
	if res.Tokens.RefreshToken == "" {
		t.Fatal("expected fresh token pair on login")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, db := newAuthServiceForTest(t, 0)
	res, err := svc.Register(registerInput("ada@example.com"), "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Model(&domain.User{}).Where("id = ?", res.User.ID).Update("active", false).Error; err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := svc.Login("ada@example.com", "correct horse battery", "", ""); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestRefreshRotatesThenRejectsReplay(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	res, err := svc.Register(registerInput("ada@example.com"), "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	next, err := svc.Refresh(res.Tokens.AccessToken, res.Tokens.RefreshToken, "", "10.0.0.2")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Tokens.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("refresh must rotate the secret")
	}

	if _, err := svc.Refresh(res.Tokens.AccessToken, res.Tokens.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected replayed secret rejected, got %v", err)
	}

	if _, err := svc.Refresh(next.Tokens.AccessToken, next.Tokens.RefreshToken, "", ""); err != nil {
		t.Fatalf("rotated pair must keep working: %v", err)
	}
}

func TestRefreshRejectsTamperedAccessToken(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	res, err := svc.Register(registerInput("ada@example.com"), "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tampered := res.Tokens.AccessToken[:len(res.Tokens.AccessToken)-2] + "xx"
	if _, err := svc.Refresh(tampered, res.Tokens.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected tampered access token rejected, got %v", err)
	}
}

func TestRefreshRejectsDisabledAccount(t *testing.T) {
	svc, db := newAuthServiceForTest(t, 0)
	res, err := svc.Register(registerInput("ada@example.com"), "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Model(&domain.User{}).Where("id = ?", res.User.ID).Update("active", false).Error; err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := svc.Refresh(res.Tokens.AccessToken, res.Tokens.RefreshToken, "", ""); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLogoutInvalidatesRefreshSecret(t *testing.T) {
	svc, _ := newAuthServiceForTest(t, 0)
	res, err := svc.Register(registerInput("ada@example.com"), "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Logout(res.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(res.Tokens.AccessToken, res.Tokens.RefreshToken, "", ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked secret rejected, got %v", err)
	}
	// Logging out twice, or with garbage, is a no-op.
	if err := svc.Logout(res.Tokens.RefreshToken); err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
	if err := svc.Logout("never-issued"); err != nil {
		t.Fatalf("unknown logout: %v", err)
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	const maxActive = 2
	svc, db := newAuthServiceForTest(t, maxActive)
	if _, err := svc.Register(registerInput("ada@example.com"), "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	var last *AuthResult
	for i := 0; i < 4; i++ {
		res, err := svc.Login("ada@example.com", "correct horse battery", "", "")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		last = res
	}

	creds := repository.NewCredentialRepository(db)
	active, err := creds.ListActiveByUserID(last.User.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) > maxActive {
		t.Fatalf("expected at most %d active credentials, got %d", maxActive, len(active))
	}

	// The newest login must survive the sweep.
	if _, err := svc.Refresh(last.Tokens.AccessToken, last.Tokens.RefreshToken, "", ""); err != nil {
		t.Fatalf("newest session should remain usable: %v", err)
	}

	var evicted int64
	db.Model(&domain.RefreshCredential{}).
		Where("revoked_reason = ?", domain.RevokedSessionCap).
		Count(&evicted)
	if evicted == 0 {
		t.Fatal("expected evicted credentials marked with the cap reason")
	}
}
