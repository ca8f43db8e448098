package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrClaimNotFound = errors.New("domain claim not found")
	ErrHostnameTaken = errors.New("hostname already claimed")
)

type DomainClaimRepository interface {
	Create(c *domain.DomainClaim) error
	FindByIDForTenant(tenantID, claimID uint) (*domain.DomainClaim, error)
	ListByTenant(tenantID uint) ([]domain.DomainClaim, error)
	FindDuePending(limit int, now time.Time) ([]domain.DomainClaim, error)
	SaveBatch(claims []domain.DomainClaim) error
	Delete(tenantID, claimID uint) error
}

type GormDomainClaimRepository struct{ db *gorm.DB }

func NewDomainClaimRepository(db *gorm.DB) DomainClaimRepository {
	return &GormDomainClaimRepository{db: db}
}

func (r *GormDomainClaimRepository) Create(c *domain.DomainClaim) error {
	err := r.db.Create(c).Error
	if err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(context.Background(), "domain_claim", "create", "conflict")
			return ErrHostnameTaken
		}
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "create", "success")
	return nil
}

func (r *GormDomainClaimRepository) FindByIDForTenant(tenantID, claimID uint) (*domain.DomainClaim, error) {
	var c domain.DomainClaim
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, claimID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "domain_claim", "find_by_id_for_tenant", "not_found")
			return nil, ErrClaimNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "find_by_id_for_tenant", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "find_by_id_for_tenant", "success")
	return &c, nil
}

func (r *GormDomainClaimRepository) ListByTenant(tenantID uint) ([]domain.DomainClaim, error) {
	var claims []domain.DomainClaim
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&claims).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "list_by_tenant", "error")
		return claims, err
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "list_by_tenant", "success")
	return claims, nil
}

// FindDuePending selects the next batch of unverified pending claims
// eligible for a check. Claims never attempted sort first so a steady
// stream of retries cannot starve fresh registrations.
func (r *GormDomainClaimRepository) FindDuePending(limit int, now time.Time) ([]domain.DomainClaim, error) {
	var claims []domain.DomainClaim
	err := r.db.
		Where("status = ? AND is_verified = ?", domain.ClaimPending, false).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("last_attempt_at IS NOT NULL").
		Order("last_attempt_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&claims).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "find_due_pending", "error")
		return claims, err
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "find_due_pending", "success")
	return claims, nil
}

// SaveBatch persists a verification tick's updates in one transaction.
func (r *GormDomainClaimRepository) SaveBatch(claims []domain.DomainClaim) error {
	if len(claims) == 0 {
		return nil
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range claims {
			if err := tx.Save(&claims[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "save_batch", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "save_batch", "success")
	return nil
}

func (r *GormDomainClaimRepository) Delete(tenantID, claimID uint) error {
	res := r.db.Where("tenant_id = ? AND id = ?", tenantID, claimID).Delete(&domain.DomainClaim{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "domain_claim", "delete", "not_found")
		return ErrClaimNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "domain_claim", "delete", "success")
	return nil
}

// isUniqueViolation matches both the postgres and sqlite drivers'
// duplicate-key errors so a create race maps to the same conflict as
// the pre-check.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}
