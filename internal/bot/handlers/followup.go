package handlers

import (
	"sync"
	"time"

	"github.com/hray3182/MindIt/internal/parser"
)

// pendingFollowUp is a partial intent waiting for the user to send a time.
type pendingFollowUp struct {
	Intent    parser.Intent
	ExpiresAt time.Time
}

type followUps struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]*pendingFollowUp // sender -> pending
}

func newFollowUps(ttl time.Duration) *followUps {
	return &followUps{ttl: ttl, pending: make(map[string]*pendingFollowUp)}
}

func (f *followUps) save(sender string, intent parser.Intent, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[sender] = &pendingFollowUp{Intent: intent, ExpiresAt: now.Add(f.ttl)}

	for key, p := range f.pending {
		if now.After(p.ExpiresAt) {
			delete(f.pending, key)
		}
	}
}

// get returns the sender's live follow-up, dropping it if it has expired.
func (f *followUps) get(sender string, now time.Time) (parser.Intent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[sender]
	if !ok {
		return parser.Intent{}, false
	}
	if now.After(p.ExpiresAt) {
		delete(f.pending, sender)
		return parser.Intent{}, false
	}
	return p.Intent, true
}

func (f *followUps) clear(sender string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, sender)
}
