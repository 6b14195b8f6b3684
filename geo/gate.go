package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"warden/waf"
)

// Config is the gate's policy for one protected domain.
type Config struct {
	// GeoBlockingEnabled turns country based denial on. The operator
	// blocklist applies regardless.
	GeoBlockingEnabled bool

	// BlockedCountries holds ISO 3166-1 alpha-2 codes.
	BlockedCountries []string

	// Blocklist holds addresses and CIDR blocks denied by explicit
	// operator action.
	Blocklist []string

	// Allowlist entries always override country based denial.
	Allowlist []string

	// LookupBudget bounds one resolver call. Zero means a 50ms default.
	LookupBudget time.Duration
}

const defaultLookupBudget = 50 * time.Millisecond

// Gate is the Geo/IP gate. Policy updates swap in a new compiled state;
// evaluations in flight keep the one they started with.
type Gate interface {
	waf.GeoGate

	// SetIPBlocked adds or removes one address from the operator
	// blocklist.
	SetIPBlocked(ip string, blocked bool) error

	// UpdateConfig replaces the gate's policy.
	UpdateConfig(cfg Config) error
}

type gateState struct {
	enabled   bool
	countries map[string]bool
	blocklist *ipTrie
	allowlist *ipTrie
}

type gateImpl struct {
	logger   zerolog.Logger
	resolver Resolver
	budget   time.Duration

	mu      sync.Mutex // serializes policy writers
	cfg     Config
	current atomic.Value // *gateState
}

// NewGate creates the gate with the given resolver and initial policy.
func NewGate(logger zerolog.Logger, resolver Resolver, cfg Config) (Gate, error) {
	g := &gateImpl{logger: logger, resolver: resolver}

	g.budget = cfg.LookupBudget
	if g.budget <= 0 {
		g.budget = defaultLookupBudget
	}

	if err := g.install(cfg); err != nil {
		return nil, err
	}

	return g, nil
}

// Evaluate applies, in order: operator blocklist, allowlist, country policy.
// Resolver failure or timeout fails open with the degraded flag set, never a
// silent block.
func (g *gateImpl) Evaluate(ctx context.Context, ip string) (result waf.GateResult) {
	st := g.current.Load().(*gateState)

	if st.blocklist.Match(ip) {
		result.Deny = true
		result.Reason = waf.ReasonOperator
		return
	}

	if !st.enabled || len(st.countries) == 0 {
		return
	}

	if st.allowlist.Match(ip) {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	country, err := g.resolver.CountryCode(lookupCtx, ip)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", waf.ErrLookupTimeout, err)
		}
		g.logger.Warn().Err(err).Str("clientIP", ip).Msg("Country lookup failed, failing open")
		result.Degraded = true
		return
	}

	result.CountryCode = country
	if country != "" && st.countries[country] {
		result.Deny = true
		result.Reason = waf.ReasonGeo
	}

	return
}

func (g *gateImpl) SetIPBlocked(ip string, blocked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg := g.cfg
	list := make([]string, 0, len(cfg.Blocklist)+1)
	for _, e := range cfg.Blocklist {
		if e != ip {
			list = append(list, e)
		}
	}
	if blocked {
		list = append(list, ip)
	}
	cfg.Blocklist = list

	return g.installLocked(cfg)
}

func (g *gateImpl) UpdateConfig(cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installLocked(cfg)
}

func (g *gateImpl) install(cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installLocked(cfg)
}

// installLocked compiles the policy and swaps it in. A bad policy leaves the
// previous one in place.
func (g *gateImpl) installLocked(cfg Config) error {
	blocklist, err := newIPTrie(cfg.Blocklist)
	if err != nil {
		return err
	}

	allowlist, err := newIPTrie(cfg.Allowlist)
	if err != nil {
		return err
	}

	countries := make(map[string]bool, len(cfg.BlockedCountries))
	for _, c := range cfg.BlockedCountries {
		countries[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	g.cfg = cfg
	g.current.Store(&gateState{
		enabled:   cfg.GeoBlockingEnabled,
		countries: countries,
		blocklist: blocklist,
		allowlist: allowlist,
	})

	return nil
}
