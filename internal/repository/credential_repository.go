package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCredentialNotFound = errors.New("refresh credential not found")

type CredentialRepository interface {
	Create(c *domain.RefreshCredential) error
	FindByHash(hash string) (*domain.RefreshCredential, error)
	ListActiveByUserID(userID uint) ([]domain.RefreshCredential, error)
	Rotate(oldHash string, successor *domain.RefreshCredential, revokingIP string) (*domain.RefreshCredential, error)
	RevokeByHash(hash, reason string) (bool, error)
	RevokeByIDs(ids []uint, reason string) (int64, error)
	RevokeByUserID(userID uint, reason string) error
	DeleteExpiredBefore(cutoff time.Time) (int64, error)
}

type GormCredentialRepository struct{ db *gorm.DB }

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &GormCredentialRepository{db: db}
}

func (r *GormCredentialRepository) Create(c *domain.RefreshCredential) error {
	err := r.db.Create(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "create", "success")
	return nil
}

func (r *GormCredentialRepository) FindByHash(hash string) (*domain.RefreshCredential, error) {
	var c domain.RefreshCredential
	err := r.db.Where("secret_hash = ?", hash).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_hash", "not_found")
			return nil, ErrCredentialNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "find_by_hash", "success")
	return &c, nil
}

func (r *GormCredentialRepository) ListActiveByUserID(userID uint) ([]domain.RefreshCredential, error) {
	var creds []domain.RefreshCredential
	err := r.db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&creds).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "list_active_by_user_id", "error")
		return creds, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "list_active_by_user_id", "success")
	return creds, nil
}

// Rotate revokes the credential matching oldHash and creates its
// successor in one transaction. The conditional select under a row lock
// is what makes a concurrent double-spend of the same secret lose: the
// second caller no longer matches "revoked_at IS NULL" and gets
// ErrCredentialNotFound.
func (r *GormCredentialRepository) Rotate(oldHash string, successor *domain.RefreshCredential, revokingIP string) (*domain.RefreshCredential, error) {
	var rotated *domain.RefreshCredential
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var old domain.RefreshCredential
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("secret_hash = ? AND revoked_at IS NULL AND expires_at > ?", oldHash, time.Now()).
			First(&old).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCredentialNotFound
			}
			return err
		}
		if err := tx.Create(successor).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		reason := domain.RevokedRotated
		updates := map[string]any{
			"revoked_at":     now,
			"revoked_reason": reason,
			"replaced_by_id": successor.ID,
		}
		if revokingIP != "" {
			updates["revoked_by_ip"] = revokingIP
		}
		if err := tx.Model(&domain.RefreshCredential{}).
			Where("id = ? AND revoked_at IS NULL", old.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		old.RevokedAt = &now
		old.RevokedReason = &reason
		old.ReplacedByID = &successor.ID
		rotated = &old
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "credential", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "credential", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "rotate", "success")
	return rotated, nil
}

func (r *GormCredentialRepository) RevokeByHash(hash, reason string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.RefreshCredential{}).
		Where("secret_hash = ? AND revoked_at IS NULL", hash).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_hash", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_hash", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormCredentialRepository) RevokeByIDs(ids []uint, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	res := r.db.Model(&domain.RefreshCredential{}).
		Where("id IN ? AND revoked_at IS NULL", ids).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_ids", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_ids", "success")
	return res.RowsAffected, nil
}

func (r *GormCredentialRepository) RevokeByUserID(userID uint, reason string) error {
	now := time.Now().UTC()
	err := r.db.Model(&domain.RefreshCredential{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_user_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "revoke_by_user_id", "success")
	return nil
}

// DeleteExpiredBefore removes rows whose expiry predates the retention
// cutoff. Recently expired and revoked rows are kept for audit.
func (r *GormCredentialRepository) DeleteExpiredBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", cutoff).Delete(&domain.RefreshCredential{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "credential", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "credential", "delete_expired", "success")
	return res.RowsAffected, nil
}
