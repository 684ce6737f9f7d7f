package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Admission counts booking outcomes.
type Admission struct {
	Accepted  Counter
	Contended Counter
	Failed    Counter

	mu       sync.Mutex
	rejected map[string]uint64
}

func NewAdmission() *Admission {
	return &Admission{rejected: map[string]uint64{}}
}

func (a *Admission) Reject(reason string) {
	a.mu.Lock()
	a.rejected[reason]++
	a.mu.Unlock()
}

type AdmissionSnapshot struct {
	Accepted  uint64            `json:"accepted"`
	Contended uint64            `json:"contended"`
	Failed    uint64            `json:"failed"`
	Rejected  map[string]uint64 `json:"rejected"`
}

func (a *Admission) Snapshot() AdmissionSnapshot {
	a.mu.Lock()
	rejected := make(map[string]uint64, len(a.rejected))
	for k, v := range a.rejected {
		rejected[k] = v
	}
	a.mu.Unlock()

	return AdmissionSnapshot{
		Accepted:  a.Accepted.Load(),
		Contended: a.Contended.Load(),
		Failed:    a.Failed.Load(),
		Rejected:  rejected,
	}
}

// CouponRuns counts Coupon Rule Engine runs.
type CouponRuns struct {
	Runs    Counter
	Failed  Counter
	Skipped Counter
	Minted  Counter
}

type CouponRunsSnapshot struct {
	Runs    uint64 `json:"runs"`
	Failed  uint64 `json:"failed"`
	Skipped uint64 `json:"skipped"`
	Minted  uint64 `json:"minted"`
}

func (c *CouponRuns) Snapshot() CouponRunsSnapshot {
	return CouponRunsSnapshot{
		Runs:    c.Runs.Load(),
		Failed:  c.Failed.Load(),
		Skipped: c.Skipped.Load(),
		Minted:  c.Minted.Load(),
	}
}
