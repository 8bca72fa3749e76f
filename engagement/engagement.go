// Package engagement tracks like/dislike reactions on comments and keeps the
// per-comment aggregate counters consistent with them.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/keylock"
)

// A Reaction records one voter's current stance on one comment. At most one
// Reaction exists per (comment, voter); changing one's mind flips the
// polarity of the existing row.
type Reaction struct {
	ID        string
	CommentID string
	UserID    string
	IsLike    bool
	CreatedAt time.Time
}

// ErrNotFound is returned by Store.GetReaction when the voter has no
// recorded reaction on the comment.
var ErrNotFound = errors.New("reaction not found")

// A Store provides the storage layer for reactions and comment counters.
type Store interface {
	// GetComment returns comments.ErrNotFound when the comment is missing.
	GetComment(ctx context.Context, id string) (comments.Comment, error)
	GetReaction(ctx context.Context, commentID, userID string) (Reaction, error)
	InsertReaction(ctx context.Context, r Reaction) (Reaction, error)
	SetReactionPolarity(ctx context.Context, reactionID string, isLike bool) error
	// AdjustCommentCounters applies the deltas in a single conditional
	// update, so counters are never read back at the application layer.
	AdjustCommentCounters(ctx context.Context, commentID string, likeDelta, dislikeDelta int) error
}

// A Cache can drop a cached comment whose counters went stale.
type Cache interface {
	RemoveComment(ctx context.Context, postID, commentID string) error
}

// An Outcome says how a vote changed the ledger.
type Outcome int

const (
	// OutcomeCreated is the voter's first reaction on the comment.
	OutcomeCreated Outcome = iota
	// OutcomeFlipped replaced the opposite polarity.
	OutcomeFlipped
	// OutcomeDuplicate repeated the recorded polarity; nothing changed.
	OutcomeDuplicate
)

// Ledger applies vote transitions. All transitions on one comment are
// serialized, so a reaction row and its counters never drift apart within
// this process; the unique (comment, voter) index in storage is the backstop
// across processes.
type Ledger struct {
	Logger *slog.Logger
	Store  Store
	Cache  Cache

	// Now stamps new reactions. Defaults to time.Now.
	Now func() time.Time

	commentLocks keylock.Map
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// React records an incoming vote by userID on commentID.
//
//	no reaction  -> create row, bump the matching counter
//	same polarity -> OutcomeDuplicate, no mutation
//	other polarity -> flip the row, move one count between the counters
//
// After any outcome the comment's like and dislike counts sum to the number
// of voters with an active reaction.
func (l *Ledger) React(ctx context.Context, commentID, userID string, isLike bool) (Outcome, error) {
	unlock := l.commentLocks.Lock(commentID)
	defer unlock()

	c, err := l.Store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, comments.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("get comment: %w", err)
	}

	prev, err := l.Store.GetReaction(ctx, commentID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		if _, err := l.Store.InsertReaction(ctx, Reaction{
			CommentID: commentID,
			UserID:    userID,
			IsLike:    isLike,
			CreatedAt: l.now(),
		}); err != nil {
			return 0, fmt.Errorf("insert reaction: %w", err)
		}
		if err := l.adjust(ctx, commentID, isLike, false); err != nil {
			return 0, err
		}
		l.dropFromCache(ctx, c.PostID, commentID)
		return OutcomeCreated, nil
	case err != nil:
		return 0, fmt.Errorf("get reaction: %w", err)
	}

	if prev.IsLike == isLike {
		return OutcomeDuplicate, nil
	}

	if err := l.Store.SetReactionPolarity(ctx, prev.ID, isLike); err != nil {
		return 0, fmt.Errorf("flip reaction: %w", err)
	}
	if err := l.adjust(ctx, commentID, isLike, true); err != nil {
		return 0, err
	}
	l.dropFromCache(ctx, c.PostID, commentID)
	return OutcomeFlipped, nil
}

// adjust moves the counters for a new or flipped vote. A flip takes one
// count off the opposite counter, so the sum stays put.
func (l *Ledger) adjust(ctx context.Context, commentID string, isLike, flip bool) error {
	likeDelta, dislikeDelta := 0, 1
	if isLike {
		likeDelta, dislikeDelta = 1, 0
	}
	if flip {
		if isLike {
			dislikeDelta = -1
		} else {
			likeDelta = -1
		}
	}
	if err := l.Store.AdjustCommentCounters(ctx, commentID, likeDelta, dislikeDelta); err != nil {
		return fmt.Errorf("adjust counters: %w", err)
	}
	return nil
}

func (l *Ledger) dropFromCache(ctx context.Context, postID, commentID string) {
	if l.Cache == nil {
		return
	}
	if err := l.Cache.RemoveComment(ctx, postID, commentID); err != nil {
		l.Logger.Error("Could not drop comment from cache", "comment_id", commentID, "error", err.Error())
	}
}
