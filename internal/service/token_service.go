package service

import (
	"errors"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// TokenService owns credential pair issuance and rotation. Every
// successful operation yields exactly one new stored refresh credential
// and one signed access token; rotation additionally revokes the
// credential it consumed.
type TokenService struct {
	jwtMgr     *security.JWTManager
	creds      repository.CredentialRepository
	pepper     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func NewTokenService(jwtMgr *security.JWTManager, creds repository.CredentialRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, creds: creds, pepper: pepper, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *TokenService) Issue(user *domain.User, ua, ip string) (*TokenPair, error) {
	return s.IssueWith(s.creds, user, ua, ip)
}

// IssueWith mints a pair against an explicit credential store so the
// register flow can issue inside its own transaction.
func (s *TokenService) IssueWith(creds repository.CredentialRepository, user *domain.User, ua, ip string) (*TokenPair, error) {
	access, err := s.jwtMgr.SignAccessToken(user.ID, user.TenantID, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	raw, err := security.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	cred := &domain.RefreshCredential{
		UserID:     user.ID,
		SecretHash: security.HashRefreshSecret(raw, s.pepper),
		UserAgent:  ua,
		IP:         ip,
		ExpiresAt:  time.Now().Add(s.refreshTTL),
	}
	if err := creds.Create(cred); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: raw, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

// Rotate exchanges a raw refresh secret for a fresh pair. The presented
// secret must hash to a stored credential owned by user, still active
// and unexpired; the store-level conditional rotate guarantees that a
// concurrent double-spend of the same secret produces at most one
// successor chain.
func (s *TokenService) Rotate(rawRefresh string, user *domain.User, ua, ip string) (*TokenPair, error) {
	hash := security.HashRefreshSecret(rawRefresh, s.pepper)
	cred, err := s.creds.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if cred.UserID != user.ID {
		return nil, ErrInvalidRefreshToken
	}
	if !cred.Active(time.Now()) {
		return nil, ErrInvalidRefreshToken
	}

	access, err := s.jwtMgr.SignAccessToken(user.ID, user.TenantID, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	raw, err := security.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	successor := &domain.RefreshCredential{
		UserID:     user.ID,
		SecretHash: security.HashRefreshSecret(raw, s.pepper),
		UserAgent:  ua,
		IP:         ip,
		ExpiresAt:  time.Now().Add(s.refreshTTL),
	}
	if _, err := s.creds.Rotate(hash, successor, ip); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			// Lost the rotation race: fail closed, no second chain.
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: raw, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

func (s *TokenService) RevokeAll(userID uint, reason string) error {
	return s.creds.RevokeByUserID(userID, reason)
}
