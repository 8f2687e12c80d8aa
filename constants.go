package shipwright

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	logrus "github.com/sirupsen/logrus"
)

// log is the package logger. Commands set level and formatter; library code
// only ever emits through it.
var log *logrus.Logger = logrus.StandardLogger()

// SetLogger swaps the package logger, mostly for tests.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// pooledRand uses sync.Pool to give each goroutine its own *rand.Rand,
// eliminating mutex contention in parallel workloads.
type pooledRand struct {
	pool sync.Pool
}

func newPooledRand(seed int64) *pooledRand {
	var counter int64
	return &pooledRand{
		pool: sync.Pool{
			New: func() any {
				s := atomic.AddInt64(&counter, 1) - 1
				return rand.New(rand.NewSource(seed + s))
			},
		},
	}
}

func (pr *pooledRand) Intn(n int) int {
	r := pr.pool.Get().(*rand.Rand)
	v := r.Intn(n)
	pr.pool.Put(r)
	return v
}

func (pr *pooledRand) Float64() float64 {
	r := pr.pool.Get().(*rand.Rand)
	v := r.Float64()
	pr.pool.Put(r)
	return v
}

// rng is the package-level random source used where no per-engine
// *rand.Rand has been injected.
var rng *pooledRand = newPooledRand(time.Now().UnixNano())

// InitRNG seeds the package-level rng. If seed is 0, the current
// time is used (non-deterministic). A non-zero seed gives
// reproducible results.
func InitRNG(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng = newPooledRand(seed)
}

const (
	// ProbEpsilon is the tolerance when checking that a rule's production
	// probabilities sum to one.
	ProbEpsilon = 1e-6

	// PushSymbol and PopSymbol open and close a bracketed branch in every
	// grammar string.
	PushSymbol = "["
	PopSymbol  = "]"
)
