// Package aggregate consumes verdicts off the request path and maintains the
// reporting read model: totals, attack type distribution, hourly traffic
// buckets, and attacker tallies. Aggregation is best effort; the blocking
// decision never waits on it.
package aggregate

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"warden/metrics"
	"warden/waf"
)

// bucketRetention is how many hourly traffic buckets are kept.
const bucketRetention = 48

// Stats is the aggregate counter read model.
type Stats struct {
	Total   uint64 `json:"total"`
	Blocked uint64 `json:"blocked"`
	Allowed uint64 `json:"allowed"`

	// Dropped counts verdicts the stats pipeline shed under burst load.
	Dropped uint64 `json:"dropped"`

	ByAttackType map[waf.AttackType]uint64 `json:"byAttackType"`
}

// Attacker is one source address with at least one blocked request.
type Attacker struct {
	IPAddress   string    `json:"ipAddress"`
	AttackCount uint64    `json:"attackCount"`
	LastSeen    time.Time `json:"lastSeen"`

	// Blocked is set by explicit operator action only; the engine never
	// sets it on its own.
	Blocked bool `json:"blocked"`
}

// TrafficBucket is one hour of allowed/blocked counts.
type TrafficBucket struct {
	Hour    time.Time `json:"hour"`
	Allowed uint64    `json:"allowed"`
	Blocked uint64    `json:"blocked"`
}

// Aggregator consumes verdicts asynchronously and serves the read model.
type Aggregator interface {
	waf.VerdictSink

	Stats() Stats
	Attackers() []Attacker
	Traffic() []TrafficBucket

	// SetAttackerBlocked records the operator's manual block flag.
	SetAttackerBlocked(ip string, blocked bool)

	// Reset clears all aggregated state. Drop counts are cleared too.
	Reset()

	// Close drains the queue and stops the consumer.
	Close()
}

type record struct {
	verdict waf.Verdict
	ip      string
	at      time.Time
}

type aggregatorImpl struct {
	logger  zerolog.Logger
	queue   chan record
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64

	mu        sync.Mutex
	total     uint64
	blocked   uint64
	allowed   uint64
	byType    map[waf.AttackType]uint64
	attackers map[string]*Attacker
	buckets   map[int64]*TrafficBucket // keyed by unix hour
}

// New creates an aggregator with the given queue capacity and starts its
// consumer.
func New(logger zerolog.Logger, queueSize int) Aggregator {
	a := newAggregator(logger, queueSize)
	go a.consume()
	return a
}

func newAggregator(logger zerolog.Logger, queueSize int) *aggregatorImpl {
	return &aggregatorImpl{
		logger:    logger,
		queue:     make(chan record, queueSize),
		done:      make(chan struct{}),
		byType:    make(map[waf.AttackType]uint64),
		attackers: make(map[string]*Attacker),
		buckets:   make(map[int64]*TrafficBucket),
	}
}

// Offer enqueues a verdict for aggregation. When the queue is full the
// verdict is dropped for stats purposes only and the drop counter moves; the
// caller's blocking decision is already made and unaffected.
func (a *aggregatorImpl) Offer(v waf.Verdict, ip string, at time.Time) bool {
	if a.closed.Load() {
		return false
	}

	select {
	case a.queue <- record{verdict: v, ip: ip, at: at}:
		return true
	default:
		a.dropped.Add(1)
		metrics.AggregationDrops.Inc()
		return false
	}
}

func (a *aggregatorImpl) consume() {
	defer close(a.done)
	for rec := range a.queue {
		a.apply(rec)
	}
}

// apply folds one verdict into the read model. Records are applied in queue
// order, so replaying a fixed sequence into a fresh aggregator always yields
// identical counters.
func (a *aggregatorImpl) apply(rec record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++

	hour := rec.at.Truncate(time.Hour)
	bucket := a.buckets[hour.Unix()]
	if bucket == nil {
		bucket = &TrafficBucket{Hour: hour}
		a.buckets[hour.Unix()] = bucket
		a.pruneBucketsLocked()
	}

	if !rec.verdict.IsBlocked {
		a.allowed++
		bucket.Allowed++
		return
	}

	a.blocked++
	bucket.Blocked++

	if rec.verdict.AttackType != "" {
		a.byType[rec.verdict.AttackType]++
	}

	attacker := a.attackers[rec.ip]
	if attacker == nil {
		attacker = &Attacker{IPAddress: rec.ip}
		a.attackers[rec.ip] = attacker
	}
	attacker.AttackCount++
	if rec.at.After(attacker.LastSeen) {
		attacker.LastSeen = rec.at
	}
}

func (a *aggregatorImpl) pruneBucketsLocked() {
	if len(a.buckets) <= bucketRetention {
		return
	}

	keys := make([]int64, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys[:len(a.buckets)-bucketRetention] {
		delete(a.buckets, k)
	}
}

func (a *aggregatorImpl) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		Total:        a.total,
		Blocked:      a.blocked,
		Allowed:      a.allowed,
		Dropped:      a.dropped.Load(),
		ByAttackType: make(map[waf.AttackType]uint64, len(a.byType)),
	}
	for k, v := range a.byType {
		s.ByAttackType[k] = v
	}

	return s
}

func (a *aggregatorImpl) Attackers() []Attacker {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Attacker, 0, len(a.attackers))
	for _, at := range a.attackers {
		out = append(out, *at)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AttackCount > out[j].AttackCount })
	return out
}

func (a *aggregatorImpl) Traffic() []TrafficBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]TrafficBucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

func (a *aggregatorImpl) SetAttackerBlocked(ip string, blocked bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attacker := a.attackers[ip]
	if attacker == nil {
		attacker = &Attacker{IPAddress: ip}
		a.attackers[ip] = attacker
	}
	attacker.Blocked = blocked
}

func (a *aggregatorImpl) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = 0
	a.blocked = 0
	a.allowed = 0
	a.dropped.Store(0)
	a.byType = make(map[waf.AttackType]uint64)
	a.attackers = make(map[string]*Attacker)
	a.buckets = make(map[int64]*TrafficBucket)
}

// Close stops accepting verdicts, drains what was already queued, and waits
// for the consumer to finish.
func (a *aggregatorImpl) Close() {
	if a.closed.Swap(true) {
		return
	}
	close(a.queue)
	<-a.done
}
