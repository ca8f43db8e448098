package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"

	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidInput       = errors.New("invalid input")
)

// AuthService orchestrates register, login, refresh and logout. All
// three issuing flows end with a best-effort session cap sweep; its
// failure never rolls back the tokens already handed out.
type AuthService struct {
	db        *gorm.DB
	users     repository.UserRepository
	creds     repository.CredentialRepository
	tokens    *TokenService
	jwtMgr    *security.JWTManager
	maxActive int
	logger    *slog.Logger
}

type RegisterInput struct {
	CompanyName string `json:"companyName"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type AuthResult struct {
	User   *domain.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

func NewAuthService(db *gorm.DB, users repository.UserRepository, creds repository.CredentialRepository, tokens *TokenService, jwtMgr *security.JWTManager, maxActive int, logger *slog.Logger) *AuthService {
	return &AuthService{
		db:        db,
		users:     users,
		creds:     creds,
		tokens:    tokens,
		jwtMgr:    jwtMgr,
		maxActive: maxActive,
		logger:    logger,
	}
}

// Register creates the tenant, its admin user and the initial refresh
// credential in a single transaction: either all three exist afterwards
// or none do. A duplicate-email race at insert time maps to the same
// error as the pre-check.
func (s *AuthService) Register(in RegisterInput, ua, ip string) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateRegisterInput(in, email); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByEmail(email); err == nil {
		observability.RecordAuthRegister("email_taken")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var result AuthResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		tenants := repository.NewTenantRepository(tx)
		users := repository.NewUserRepository(tx)
		creds := repository.NewCredentialRepository(tx)

		tenant := &domain.Tenant{Name: strings.TrimSpace(in.CompanyName)}
		if err := tenants.Create(tenant); err != nil {
			return err
		}
		user := &domain.User{
			TenantID:     tenant.ID,
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: passwordHash,
			Role:         domain.RoleAdmin,
			Active:       true,
		}
		if err := users.Create(user); err != nil {
			if isDuplicateKey(err) {
				return ErrEmailTaken
			}
			return err
		}
		pair, err := s.tokens.IssueWith(creds, user, ua, ip)
		if err != nil {
			return err
		}
		result = AuthResult{User: user, Tokens: pair}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			observability.RecordAuthRegister("email_taken")
			return nil, ErrEmailTaken
		}
		observability.RecordAuthRegister("error")
		return nil, err
	}

	observability.RecordAuthRegister("success")
	s.enforceSessionCap(result.User.ID)
	return &result, nil
}

// Login authenticates an email/password pair. Unknown email and wrong
// password return the same opaque error; a bcrypt compare still runs on
// the unknown-email path so the two are not distinguishable by timing.
func (s *AuthService) Login(email, password, ua, ip string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			security.CheckPassword(dummyPasswordHash, password)
			observability.RecordAuthLogin("invalid")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		observability.RecordAuthLogin("invalid")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		observability.RecordAuthLogin("disabled")
		return nil, ErrAccountDisabled
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(user, ua, ip)
	if err != nil {
		observability.RecordAuthLogin("error")
		return nil, err
	}
	observability.RecordAuthLogin("success")
	s.enforceSessionCap(user.ID)
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh rotates a refresh credential. The caller presents both the
// raw refresh secret and the just-expired access token; the principal
// is recovered from the latter under signature check only and must own
// the stored credential.
func (s *AuthService) Refresh(accessToken, rawRefresh, ua, ip string) (*AuthResult, error) {
	claims, err := s.jwtMgr.ParseExpiredAccessToken(accessToken)
	if err != nil {
		observability.RecordAuthRefresh("invalid_access_token")
		return nil, ErrInvalidRefreshToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		observability.RecordAuthRefresh("invalid_access_token")
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.FindByID(uint(userID))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthRefresh("invalid")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.Active {
		observability.RecordAuthRefresh("disabled")
		return nil, ErrAccountDisabled
	}

	pair, err := s.tokens.Rotate(rawRefresh, user, ua, ip)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			observability.RecordAuthRefresh("invalid")
			return nil, err
		}
		observability.RecordAuthRefresh("error")
		return nil, err
	}
	observability.RecordAuthRefresh("success")
	s.enforceSessionCap(user.ID)
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Logout revokes the presented refresh credential. Revoking an unknown
// or already-revoked secret is not an error.
func (s *AuthService) Logout(rawRefresh string) error {
	hash := security.HashRefreshSecret(rawRefresh, s.tokens.pepper)
	_, err := s.creds.RevokeByHash(hash, domain.RevokedLogout)
	return err
}

func (s *AuthService) CurrentUser(userID uint) (*domain.User, error) {
	return s.users.FindByID(userID)
}

// enforceSessionCap revokes active credentials beyond the configured
// maximum, newest kept. The cap is enforced after issuance rather than
// before it, so a burst of concurrent logins may transiently exceed it
// until the next sweep runs.
func (s *AuthService) enforceSessionCap(userID uint) {
	if s.maxActive <= 0 {
		return
	}
	active, err := s.creds.ListActiveByUserID(userID)
	if err != nil {
		s.logger.Warn("session cap sweep failed", "user_id", userID, "error", err)
		return
	}
	if len(active) <= s.maxActive {
		return
	}
	ids := make([]uint, 0, len(active)-s.maxActive)
	for _, c := range active[s.maxActive:] {
		ids = append(ids, c.ID)
	}
	revoked, err := s.creds.RevokeByIDs(ids, domain.RevokedSessionCap)
	if err != nil {
		s.logger.Warn("session cap eviction failed", "user_id", userID, "error", err)
		return
	}
	observability.RecordSessionEvictions(revoked)
}

func validateRegisterInput(in RegisterInput, email string) error {
	if strings.TrimSpace(in.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}

// dummyPasswordHash is a bcrypt hash of a throwaway value, compared on
// the unknown-email login path to keep its timing close to a real
// mismatch.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
