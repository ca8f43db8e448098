package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainServiceForTest(t *testing.T) (*DomainService, repository.DomainClaimRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.DomainClaim{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	claims := repository.NewDomainClaimRepository(db)
	return NewDomainService(claims, "_supportd-verify."), claims
}

func TestRegisterDomainNormalizesAndIssuesInstruction(t *testing.T) {
	svc, _ := newDomainServiceForTest(t)

	claim, instr, err := svc.RegisterDomain(1, "https://WWW.Example.COM/support?x=1")
	if err != nil {
		t.Fatalf("register domain: %v", err)
	}
	if claim.Hostname != "example.com" {
		t.Fatalf("expected normalized hostname, got %q", claim.Hostname)
	}
	if claim.Status != domain.ClaimPending || claim.IsVerified {
		t.Fatalf("expected pending unverified claim, got %+v", claim)
	}
	if instr.RecordName != "_supportd-verify.example.com" {
		t.Fatalf("unexpected record name %q", instr.RecordName)
	}
	if instr.RecordValue != claim.VerificationSecret || instr.RecordValue == "" {
		t.Fatal("instruction must carry the claim's verification secret")
	}
	if !strings.HasPrefix(claim.APIKey, "sk_") {
		t.Fatalf("expected api key minted at registration, got %q", claim.APIKey)
	}
}

func TestRegisterDomainRejectsGarbage(t *testing.T) {
	svc, _ := newDomainServiceForTest(t)
	for _, raw := range []string{"", "   ", "https://", "not a hostname"} {
		if _, _, err := svc.RegisterDomain(1, raw); !errors.Is(err, ErrInvalidHostname) {
			t.Errorf("%q: expected ErrInvalidHostname, got %v", raw, err)
		}
	}
}

func TestRegisterDomainDuplicateHostname(t *testing.T) {
	svc, _ := newDomainServiceForTest(t)
	if _, _, err := svc.RegisterDomain(1, "example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Same hostname spelled differently still collides after normalization.
	_, _, err := svc.RegisterDomain(2, "https://www.example.com")
	if !errors.Is(err, repository.ErrHostnameTaken) {
		t.Fatalf("expected ErrHostnameTaken, got %v", err)
	}
}

func TestAPIKeyWithheldUntilVerified(t *testing.T) {
	svc, claims := newDomainServiceForTest(t)
	claim, _, err := svc.RegisterDomain(1, "example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.APIKey(1, claim.ID); !errors.Is(err, ErrDomainNotVerified) {
		t.Fatalf("expected pending claim to withhold key, got %v", err)
	}

	// Flag without status is not enough.
	claim.IsVerified = true
	if err := claims.SaveBatch([]domain.DomainClaim{*claim}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.APIKey(1, claim.ID); !errors.Is(err, ErrDomainNotVerified) {
		t.Fatalf("expected half-verified claim to withhold key, got %v", err)
	}

	now := time.Now().UTC()
	claim.Status = domain.ClaimVerified
	claim.VerifiedAt = &now
	if err := claims.SaveBatch([]domain.DomainClaim{*claim}); err != nil {
		t.Fatalf("save: %v", err)
	}
	key, err := svc.APIKey(1, claim.ID)
	if err != nil {
		t.Fatalf("api key: %v", err)
	}
	if key != claim.APIKey {
		t.Fatal("expected the claim's stored key")
	}

	if _, err := svc.APIKey(2, claim.ID); !errors.Is(err, repository.ErrClaimNotFound) {
		t.Fatalf("expected foreign tenant denied, got %v", err)
	}
}

func TestListAndDeleteDomains(t *testing.T) {
	svc, _ := newDomainServiceForTest(t)
	claim, _, err := svc.RegisterDomain(1, "a.example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.RegisterDomain(1, "b.example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}

	list, err := svc.ListDomains(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(list))
	}

	if err := svc.DeleteDomain(2, claim.ID); !errors.Is(err, repository.ErrClaimNotFound) {
		t.Fatalf("expected foreign delete denied, got %v", err)
	}
	if err := svc.DeleteDomain(1, claim.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetDomain(1, claim.ID); !errors.Is(err, repository.ErrClaimNotFound) {
		t.Fatal("expected claim gone")
	}
}
