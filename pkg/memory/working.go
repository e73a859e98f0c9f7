package memory

import (
	"context"
	"sync"
	"time"

	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

// Item is one unit of hot content: an exchange or its compressed summary.
// The token cost is cached at insertion so capacity checks never re-count.
type Item struct {
	ID              string
	Content         string
	TokenCost       int
	ImportanceScore float64
	CreatedAt       time.Time
	Compressed      bool
	Entities        []types.Entity
}

// Event records what an insertion cycle did to an item, so callers can
// persist derived metadata and count metrics.
type Event struct {
	ItemID     string
	Evicted    bool
	Compressed bool
	NewCost    int
}

/*
WorkingMemory is a token-capacity-bounded container of active items.  One
instance exists per topic (or per session).  All read-modify-write sequences
run under the instance mutex; instances for different scopes share nothing,
so operations on different topics proceed fully in parallel.

The capacity invariant: once an insertion cycle completes, the total token
cost of all items never exceeds the configured capacity.
*/
type WorkingMemory struct {
	mu       sync.Mutex
	capacity int
	halfLife time.Duration
	items    []*Item
	counter  *tokens.Estimator
}

func NewWorkingMemory(capacity int, halfLife time.Duration) *WorkingMemory {
	return &WorkingMemory{
		capacity: capacity,
		halfLife: halfLife,
		counter:  tokens.NewEstimator(),
	}
}

// Insert adds an item and restores the capacity invariant, evicting or
// compressing candidates per mode.  An incoming item that alone exceeds
// capacity is compressed regardless of mode, because no amount of eviction
// can make it fit.
func (wm *WorkingMemory) Insert(
	ctx context.Context,
	item Item,
	strategy CompressionStrategy,
	mode types.EvictionMode,
) ([]Event, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	var events []Event

	if item.TokenCost > wm.capacity {
		content, achieved, err := strategy.Compress(ctx, item.Content, item.Entities, wm.capacity)
		if err != nil && content == "" {
			return nil, err
		}

		item.Content = content
		item.TokenCost = achieved
		item.Compressed = true

		events = append(events, Event{
			ItemID:     item.ID,
			Compressed: true,
			NewCost:    achieved,
		})
	}

	stored := item
	wm.items = append(wm.items, &stored)

	now := time.Now().UTC()

	for wm.totalLocked() > wm.capacity {
		candidate := wm.candidateLocked(now)
		if candidate < 0 {
			break
		}

		victim := wm.items[candidate]

		if mode == types.EvictionModeCompress && !victim.Compressed {
			target := victim.TokenCost / 2
			if target < 1 {
				target = 1
			}

			content, achieved, err := strategy.Compress(ctx, victim.Content, victim.Entities, target)

			if err == nil && achieved < victim.TokenCost {
				victim.Content = content
				victim.TokenCost = achieved
				victim.Compressed = true

				events = append(events, Event{
					ItemID:     victim.ID,
					Compressed: true,
					NewCost:    achieved,
				})
				continue
			}
			// Compression failed or gained nothing: fall through to eviction
			// so the loop always terminates.
		}

		wm.items = append(wm.items[:candidate], wm.items[candidate+1:]...)
		events = append(events, Event{ItemID: victim.ID, Evicted: true})
	}

	return events, nil
}

// candidateLocked picks the eviction candidate: lowest importance × recency
// weight, ties broken oldest-first.  The incoming item participates like any
// other; nothing is pinned.
func (wm *WorkingMemory) candidateLocked(now time.Time) int {
	best := -1
	var bestScore float64

	for i, item := range wm.items {
		score := item.ImportanceScore * DecayWeight(now.Sub(item.CreatedAt), wm.halfLife)

		if best < 0 ||
			score < bestScore ||
			(score == bestScore && item.CreatedAt.Before(wm.items[best].CreatedAt)) {
			best = i
			bestScore = score
		}
	}

	return best
}

func (wm *WorkingMemory) totalLocked() int {
	total := 0
	for _, item := range wm.items {
		total += item.TokenCost
	}
	return total
}

// TotalTokens reports the current cost of all active items.
func (wm *WorkingMemory) TotalTokens() int {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.totalLocked()
}

// Items returns a snapshot of the active items in insertion order.
func (wm *WorkingMemory) Items() []Item {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	out := make([]Item, len(wm.items))
	for i, item := range wm.items {
		out[i] = *item
	}

	return out
}

// Contains reports whether an item is still hot.
func (wm *WorkingMemory) Contains(id string) bool {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	for _, item := range wm.items {
		if item.ID == id {
			return true
		}
	}

	return false
}

// RecentContent returns the content of the most recent n items, newest last.
// The prioritization strategy uses it to judge contextual relevance.
func (wm *WorkingMemory) RecentContent(n int) []string {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	start := len(wm.items) - n
	if start < 0 {
		start = 0
	}

	out := make([]string, 0, len(wm.items)-start)
	for _, item := range wm.items[start:] {
		out = append(out, item.Content)
	}

	return out
}
