package embedding

import (
	"sync"
	"time"
)

// UsageSnapshot is a point-in-time view of embedding traffic, surfaced on
// the ops stats endpoint.
type UsageSnapshot struct {
	Calls         int64      `json:"calls"`
	TextsEmbedded int64      `json:"texts_embedded"`
	Failures      int64      `json:"failures"`
	LastCallAt    *time.Time `json:"last_call_at,omitempty"`
}

type usageCounter struct {
	mu       sync.Mutex
	calls    int64
	texts    int64
	failures int64
	lastCall time.Time
}

func newUsageCounter() *usageCounter { return &usageCounter{} }

func (u *usageCounter) record(texts int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.texts += int64(texts)
	u.lastCall = time.Now().UTC()
}

func (u *usageCounter) recordFailure() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures++
	u.lastCall = time.Now().UTC()
}

func (u *usageCounter) snapshot() UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := UsageSnapshot{Calls: u.calls, TextsEmbedded: u.texts, Failures: u.failures}
	if !u.lastCall.IsZero() {
		t := u.lastCall
		s.LastCallAt = &t
	}
	return s
}
