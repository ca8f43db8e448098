package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
)

// Resolver is the DNS port the verifier depends on. Production uses
// net.DefaultResolver; tests substitute a fake.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type netResolver struct{ r *net.Resolver }

func NewNetResolver() Resolver { return &netResolver{r: net.DefaultResolver} }

func (n *netResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return n.r.LookupTXT(ctx, name)
}

type VerifierOptions struct {
	Interval        time.Duration
	BatchSize       int
	MaxAttempts     int
	BackoffCap      time.Duration
	FallbackBackoff time.Duration
	LookupTimeout   time.Duration
	TXTPrefix       string
	Logger          *slog.Logger
}

func (o *VerifierOptions) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 60 * time.Minute
	}
	if o.FallbackBackoff <= 0 {
		o.FallbackBackoff = 5 * time.Minute
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 5 * time.Second
	}
	if o.TXTPrefix == "" {
		o.TXTPrefix = "_supportd-verify."
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Verifier advances pending domain claims toward verified or failed.
// All state lives on the claim rows, so a crash mid-batch simply
// resumes at the next tick.
type Verifier struct {
	claims   repository.DomainClaimRepository
	resolver Resolver
	opts     VerifierOptions
}

func NewVerifier(claims repository.DomainClaimRepository, resolver Resolver, opts VerifierOptions) *Verifier {
	opts.setDefaults()
	return &Verifier{claims: claims, resolver: resolver, opts: opts}
}

func (v *Verifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := v.CheckOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			v.opts.Logger.Warn("domain verification tick failed", "error", err)
		}
	}
}

// CheckOnce runs one verification batch and persists every claim it
// touched in a single write.
func (v *Verifier) CheckOnce(ctx context.Context) error {
	now := time.Now().UTC()
	claims, err := v.claims.FindDuePending(v.opts.BatchSize, now)
	if err != nil {
		return fmt.Errorf("select due claims: %w", err)
	}
	if len(claims) == 0 {
		return nil
	}

	for i := range claims {
		if ctx.Err() != nil {
			// Shutdown mid-batch: persist what was checked so far.
			claims = claims[:i]
			break
		}
		v.advance(ctx, &claims[i], now)
	}
	if len(claims) == 0 {
		return ctx.Err()
	}
	if err := v.claims.SaveBatch(claims); err != nil {
		return fmt.Errorf("persist verification batch: %w", err)
	}
	return ctx.Err()
}

// advance runs one claim's check and mutates it in place. A resolver
// error or panic is converted to backoff state; it never escapes the
// batch.
func (v *Verifier) advance(ctx context.Context, claim *domain.DomainClaim, now time.Time) {
	matched, err := v.lookup(ctx, claim)
	switch {
	case err != nil:
		v.recordMiss(claim, now, err.Error(), v.fallbackAttemptTime(now))
		observability.RecordDomainCheck("lookup_error")
		v.opts.Logger.Info("domain check errored",
			"hostname", claim.Hostname, "attempts", claim.Attempts, "error", err)
	case matched:
		claim.Status = domain.ClaimVerified
		claim.IsVerified = true
		claim.VerifiedAt = &now
		claim.LastAttemptAt = &now
		claim.LastError = nil
		claim.NextAttemptAt = nil
		observability.RecordDomainCheck("verified")
		v.opts.Logger.Info("domain verified", "hostname", claim.Hostname, "attempts", claim.Attempts+1)
	default:
		next := now.Add(v.backoff(claim.Attempts + 1))
		v.recordMiss(claim, now, "verification TXT record not found", next)
		observability.RecordDomainCheck("no_match")
	}

	if claim.Status == domain.ClaimPending && claim.Attempts >= v.opts.MaxAttempts {
		claim.Status = domain.ClaimFailed
		claim.NextAttemptAt = nil
		observability.RecordDomainCheck("failed")
		v.opts.Logger.Warn("domain verification failed permanently",
			"hostname", claim.Hostname, "attempts", claim.Attempts)
	}
}

func (v *Verifier) lookup(ctx context.Context, claim *domain.DomainClaim) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("lookup panicked: %v", r)
		}
	}()

	hostname, err := domain.NormalizeHostname(claim.Hostname)
	if err != nil {
		return false, fmt.Errorf("normalize hostname: %w", err)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, v.opts.LookupTimeout)
	defer cancel()

	txts, err := v.resolver.LookupTXT(lookupCtx, v.opts.TXTPrefix+hostname)
	if err != nil {
		return false, err
	}
	want := strings.ToLower(strings.TrimSpace(claim.VerificationSecret))
	for _, txt := range txts {
		if strings.ToLower(strings.TrimSpace(txt)) == want {
			return true, nil
		}
	}
	return false, nil
}

func (v *Verifier) recordMiss(claim *domain.DomainClaim, now time.Time, message string, next time.Time) {
	claim.Attempts++
	claim.LastAttemptAt = &now
	msg := message
	claim.LastError = &msg
	claim.NextAttemptAt = &next
}

// backoff returns min(cap, 2^attempts minutes).
func (v *Verifier) backoff(attempts int) time.Duration {
	if attempts > 30 {
		return v.opts.BackoffCap
	}
	d := time.Duration(1<<uint(attempts)) * time.Minute
	if d > v.opts.BackoffCap {
		return v.opts.BackoffCap
	}
	return d
}

func (v *Verifier) fallbackAttemptTime(now time.Time) time.Time {
	return now.Add(v.opts.FallbackBackoff)
}
