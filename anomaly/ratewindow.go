package anomaly

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	windowSeconds = 60
	shardCount    = 64

	// sweepInterval is how many observations a shard takes between sweeps
	// of idle entries.
	sweepInterval = 4096
)

// RateWindow counts requests per source IP over a sliding 60 second window.
// The map is sharded with per-shard locking so that attack traffic, which is
// exactly when the window is hit hardest, does not serialize on one lock.
type RateWindow struct {
	shards [shardCount]rateShard
}

type rateShard struct {
	mu       sync.Mutex
	ips      map[string]*ipWindow
	observes int
}

// ipWindow is a ring of per-second counters.
type ipWindow struct {
	buckets  [windowSeconds]uint32
	lastTick int64 // unix second of the most recent observation
}

// NewRateWindow creates an empty window.
func NewRateWindow() *RateWindow {
	w := &RateWindow{}
	for i := range w.shards {
		w.shards[i].ips = make(map[string]*ipWindow)
	}
	return w
}

// Observe records one request from the IP and returns the count within the
// window, including this request.
func (w *RateWindow) Observe(ip string, now time.Time) int {
	shard := w.shard(ip)
	tick := now.Unix()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.observes++
	if shard.observes >= sweepInterval {
		shard.observes = 0
		shard.sweep(tick)
	}

	iw := shard.ips[ip]
	if iw == nil {
		iw = &ipWindow{lastTick: tick}
		shard.ips[ip] = iw
	}

	iw.advance(tick)
	iw.buckets[tick%windowSeconds]++

	return iw.total()
}

// Count returns the number of requests from the IP within the window without
// recording one.
func (w *RateWindow) Count(ip string, now time.Time) int {
	shard := w.shard(ip)
	tick := now.Unix()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	iw := shard.ips[ip]
	if iw == nil {
		return 0
	}

	iw.advance(tick)
	return iw.total()
}

func (w *RateWindow) shard(ip string) *rateShard {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return &w.shards[h.Sum32()%shardCount]
}

// sweep drops entries whose last observation is outside the window.
func (s *rateShard) sweep(tick int64) {
	for ip, iw := range s.ips {
		if tick-iw.lastTick >= windowSeconds {
			delete(s.ips, ip)
		}
	}
}

// advance zeroes the buckets between the last observation and now.
func (iw *ipWindow) advance(tick int64) {
	if tick <= iw.lastTick {
		return
	}

	gap := tick - iw.lastTick
	if gap >= windowSeconds {
		iw.buckets = [windowSeconds]uint32{}
	} else {
		for t := iw.lastTick + 1; t <= tick; t++ {
			iw.buckets[t%windowSeconds] = 0
		}
	}

	iw.lastTick = tick
}

func (iw *ipWindow) total() int {
	var sum int
	for _, b := range iw.buckets {
		sum += int(b)
	}
	return sum
}
