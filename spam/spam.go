// Package spam flags authors who submit comments faster than the allowed
// rate on a single post.
package spam

import (
	"context"
	"fmt"
	"time"
)

// A CommentCounter counts stored comments by an author on a post within a
// time range. The range is inclusive on both ends.
type CommentCounter interface {
	CountCommentsBetween(ctx context.Context, authorID, postID string, from, to time.Time) (int, error)
}

// A Guard decides whether a submission by (author, post) exceeds the
// configured rate. It is read-only; the submission itself is counted as if
// it were already stored, so with Threshold 5 the sixth comment inside the
// window is flagged.
type Guard struct {
	Counter   CommentCounter
	Window    time.Duration
	Threshold int

	// Now is used to anchor the trailing window. Defaults to time.Now.
	Now func() time.Time
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// IsSpamming reports whether accepting one more comment by authorID on
// postID right now would push the trailing-window total past the threshold.
func (g *Guard) IsSpamming(ctx context.Context, authorID, postID string) (bool, error) {
	now := g.now()
	count, err := g.Counter.CountCommentsBetween(ctx, authorID, postID, now.Add(-g.Window), now)
	if err != nil {
		return false, fmt.Errorf("count comments: %w", err)
	}
	return count+1 > g.Threshold, nil
}
