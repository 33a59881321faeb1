package upload

import (
	"sync"

	"github.com/alexjbarnes/ledger-upload/internal/backend"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// TotalKey is the single aggregate progress key for a batch. The
// transport multiplexes every file into one request, so per-file
// progress is not available.
const TotalKey = "total"

// ProgressTracker holds percent-complete values per key. Values never
// decrease until Reset.
type ProgressTracker struct {
	mu     sync.Mutex
	state  models.ProgressState
	subs   map[int]chan models.ProgressState
	nextID int
}

// NewProgressTracker returns an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		state: make(models.ProgressState),
		subs:  make(map[int]chan models.ProgressState),
	}
}

// Reset clears all progress and notifies subscribers.
func (p *ProgressTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = make(models.ProgressState)
	p.notifyLocked()
}

// Update sets key to percent, clamped to [0,100]. Lower values than the
// current one are ignored. It reports whether the stored value changed.
func (p *ProgressTracker) Update(key string, percent int) bool {
	percent = min(max(percent, 0), 100)

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.state[key]; ok && percent <= cur {
		return false
	}

	p.state[key] = percent
	p.notifyLocked()

	return true
}

// Get returns the current percent for key, or 0.
func (p *ProgressTracker) Get(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state[key]
}

// Snapshot returns a copy of the current state.
func (p *ProgressTracker) Snapshot() models.ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.copyLocked()
}

// Subscribe returns a channel that receives the latest state after each
// change. Slow readers only see the most recent state. The returned
// function unsubscribes and closes the channel.
func (p *ProgressTracker) Subscribe() (<-chan models.ProgressState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++

	ch := make(chan models.ProgressState, 1)
	p.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()

			delete(p.subs, id)
			close(ch)
		})
	}
}

// ReportBytes adapts byte-level transfer callbacks to percentage
// updates under key.
func (p *ProgressTracker) ReportBytes(key string) backend.ProgressFunc {
	return func(sent, total int64) {
		p.Update(key, percentOf(sent, total))
	}
}

func percentOf(sent, total int64) int {
	if total <= 0 {
		return 100
	}

	return int((sent*100 + total/2) / total)
}

func (p *ProgressTracker) copyLocked() models.ProgressState {
	out := make(models.ProgressState, len(p.state))
	for k, v := range p.state {
		out[k] = v
	}

	return out
}

func (p *ProgressTracker) notifyLocked() {
	if len(p.subs) == 0 {
		return
	}

	snap := p.copyLocked()

	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale value so the latest state is delivered.
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- snap:
			default:
			}
		}
	}
}
