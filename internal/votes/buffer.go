package votes

import (
	"time"

	"github.com/signalherd/signalherd/internal/models"
)

// Buffer is a bounded rolling vote window for one instrument scope. It is
// owned by a single evaluation worker, so no locking: backpressure is
// handled here at the boundary (drop-oldest), keeping the gating logic
// itself unbounded-input-free. One address holds at most one live vote;
// a newer vote from the same address replaces the older one.
type Buffer struct {
	capacity int
	votes    []models.Vote
}

// NewBuffer creates a buffer bounded at capacity votes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Add inserts a vote, replacing any earlier vote from the same address
// and evicting the oldest vote when the buffer is full.
func (b *Buffer) Add(v models.Vote) {
	for i := range b.votes {
		if b.votes[i].Address == v.Address {
			b.votes = append(b.votes[:i], b.votes[i+1:]...)
			break
		}
	}
	if len(b.votes) >= b.capacity {
		b.votes = b.votes[1:]
	}
	b.votes = append(b.votes, v)
}

// Window returns the votes newer than now−window, oldest first. Expired
// votes are pruned as a side effect.
func (b *Buffer) Window(now time.Time, window time.Duration) []models.Vote {
	cutoff := now.Add(-window)
	kept := b.votes[:0]
	for _, v := range b.votes {
		if v.Timestamp.After(cutoff) {
			kept = append(kept, v)
		}
	}
	b.votes = kept

	out := make([]models.Vote, len(b.votes))
	copy(out, b.votes)
	return out
}

// Len reports the current number of buffered votes.
func (b *Buffer) Len() int { return len(b.votes) }
