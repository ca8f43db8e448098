package repository

import (
	"context"
	"errors"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"

	"gorm.io/gorm"
)

var ErrTenantNotFound = errors.New("tenant not found")

type TenantRepository interface {
	FindByID(id uint) (*domain.Tenant, error)
	Create(t *domain.Tenant) error
}

type GormTenantRepository struct{ db *gorm.DB }

func NewTenantRepository(db *gorm.DB) TenantRepository { return &GormTenantRepository{db: db} }

func (r *GormTenantRepository) FindByID(id uint) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "tenant", "find_by_id", "not_found")
			return nil, ErrTenantNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "tenant", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "tenant", "find_by_id", "success")
	return &t, nil
}

func (r *GormTenantRepository) Create(t *domain.Tenant) error {
	err := r.db.Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "tenant", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "tenant", "create", "success")
	return nil
}
