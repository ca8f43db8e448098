package health

import (
	"context"
	"sync"
	"time"
)

// CheckResult is the outcome of a single readiness probe.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Checker probes one dependency. Implementations must respect ctx.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) CheckResult

func (f CheckerFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// ProbeRunner runs a fixed set of checkers with a per-run timeout and
// caches the aggregate result so probe-heavy orchestrators do not hammer
// the dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu       sync.Mutex
	cachedAt time.Time
	cachedOK bool
	cached   []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

// Ready reports whether every checker passed, along with the individual
// results. Within cacheTTL of the previous run the cached results are
// returned without re-probing.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cacheTTL > 0 && !p.cachedAt.IsZero() && time.Since(p.cachedAt) < p.cacheTTL {
		return p.cachedOK, p.cached
	}

	results := make([]CheckResult, 0, len(p.checkers))
	ok := true
	for _, c := range p.checkers {
		checkCtx := ctx
		cancel := func() {}
		if p.timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		res := c.Check(checkCtx)
		cancel()
		if !res.Healthy {
			ok = false
		}
		results = append(results, res)
	}

	p.cachedAt = time.Now()
	p.cachedOK = ok
	p.cached = results
	return ok, results
}

// Pinger is the subset of database/sql.DB the database checker needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseChecker reports whether the backing database answers a ping.
func DatabaseChecker(name string, db Pinger) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := db.PingContext(ctx); err != nil {
			return CheckResult{Name: name, Healthy: false, Error: err.Error()}
		}
		return CheckResult{Name: name, Healthy: true}
	})
}
