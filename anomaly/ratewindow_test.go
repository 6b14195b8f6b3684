package anomaly

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestObserveCountsWithinWindow(t *testing.T) {
	w := NewRateWindow()

	assert.Equal(t, 1, w.Observe("1.1.1.1", base))
	assert.Equal(t, 2, w.Observe("1.1.1.1", base.Add(time.Second)))
	assert.Equal(t, 3, w.Observe("1.1.1.1", base.Add(30*time.Second)))

	assert.Equal(t, 1, w.Observe("2.2.2.2", base))
}

func TestWindowSlides(t *testing.T) {
	w := NewRateWindow()

	w.Observe("1.1.1.1", base)
	w.Observe("1.1.1.1", base.Add(time.Second))

	// 59s later the first observation has left the window, the second has
	// not.
	assert.Equal(t, 1, w.Count("1.1.1.1", base.Add(60*time.Second)))

	// After the full horizon both are gone.
	assert.Equal(t, 0, w.Count("1.1.1.1", base.Add(2*time.Minute)))
}

func TestBurstInOneSecond(t *testing.T) {
	w := NewRateWindow()

	for i := 0; i < 50; i++ {
		w.Observe("1.1.1.1", base)
	}

	assert.Equal(t, 50, w.Count("1.1.1.1", base))
	assert.Equal(t, 0, w.Count("1.1.1.1", base.Add(61*time.Second)))
}

func TestCountUnknownIP(t *testing.T) {
	w := NewRateWindow()
	assert.Equal(t, 0, w.Count("203.0.113.1", base))
}

func TestConcurrentObserves(t *testing.T) {
	w := NewRateWindow()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Observe(fmt.Sprintf("10.0.%d.%d", g, i%4), base)
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for g := 0; g < 8; g++ {
		for i := 0; i < 4; i++ {
			total += w.Count(fmt.Sprintf("10.0.%d.%d", g, i), base)
		}
	}
	assert.Equal(t, 800, total)
}
