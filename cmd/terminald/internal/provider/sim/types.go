package sim

import (
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts time for the tick loop so tests run instantly
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Rand abstracts randomness so tests are deterministic
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// systemRand serializes access to a single rand.Rand: the tick loop and the
// REST paths draw from the same source concurrently.
type systemRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newSystemRand() *systemRand {
	return &systemRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *systemRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

func (s *systemRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}
