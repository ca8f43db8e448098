package service

import (
	"errors"
	"fmt"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"
)

var (
	ErrInvalidHostname   = errors.New("invalid hostname")
	ErrDomainNotVerified = errors.New("domain is not verified")
)

// DomainService handles domain claim registration and reads. The claim
// itself is advanced only by the verification worker; this service
// never mutates status fields.
type DomainService struct {
	claims    repository.DomainClaimRepository
	txtPrefix string
}

// VerificationInstruction is the TXT record a tenant must publish at
// their DNS provider before the claim can verify.
type VerificationInstruction struct {
	RecordName  string `json:"recordName"`
	RecordValue string `json:"recordValue"`
}

func NewDomainService(claims repository.DomainClaimRepository, txtPrefix string) *DomainService {
	return &DomainService{claims: claims, txtPrefix: txtPrefix}
}

func (s *DomainService) RegisterDomain(tenantID uint, rawHostname string) (*domain.DomainClaim, *VerificationInstruction, error) {
	hostname, err := domain.NormalizeHostname(rawHostname)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidHostname, err)
	}
	secret, err := security.NewVerificationSecret()
	if err != nil {
		return nil, nil, err
	}
	apiKey, err := security.NewAPIKey()
	if err != nil {
		return nil, nil, err
	}
	claim := &domain.DomainClaim{
		TenantID:           tenantID,
		Hostname:           hostname,
		VerificationSecret: secret,
		Status:             domain.ClaimPending,
		APIKey:             apiKey,
	}
	if err := s.claims.Create(claim); err != nil {
		return nil, nil, err
	}
	return claim, s.Instruction(claim), nil
}

func (s *DomainService) Instruction(claim *domain.DomainClaim) *VerificationInstruction {
	return &VerificationInstruction{
		RecordName:  s.txtPrefix + claim.Hostname,
		RecordValue: claim.VerificationSecret,
	}
}

func (s *DomainService) ListDomains(tenantID uint) ([]domain.DomainClaim, error) {
	return s.claims.ListByTenant(tenantID)
}

func (s *DomainService) GetDomain(tenantID, claimID uint) (*domain.DomainClaim, error) {
	return s.claims.FindByIDForTenant(tenantID, claimID)
}

// APIKey releases the claim's widget key only once verification has
// landed; both the flag and the status must agree.
func (s *DomainService) APIKey(tenantID, claimID uint) (string, error) {
	claim, err := s.claims.FindByIDForTenant(tenantID, claimID)
	if err != nil {
		return "", err
	}
	if !claim.Usable() {
		return "", ErrDomainNotVerified
	}
	return claim.APIKey, nil
}

func (s *DomainService) DeleteDomain(tenantID, claimID uint) error {
	return s.claims.Delete(tenantID, claimID)
}
