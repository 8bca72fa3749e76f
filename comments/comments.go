// Package comments accepts, edits, and lists comments, applying the
// moderation and spam policies on every write.
package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commentd/commentd/keylock"
	"github.com/commentd/commentd/moderation"
	"github.com/commentd/commentd/spam"
)

// A Store provides the storage layer that persists comments.
type Store interface {
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id string) (Comment, error)
	// UpdateCommentText and DeleteComment return ErrNotFound when no such
	// comment exists.
	UpdateCommentText(ctx context.Context, id, text string) error
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, postID string, order Order, excludeIDs ...string) ([]Comment, error)
}

// A Cache provides a storage layer that caches the newest comments per post.
type Cache interface {
	// ListComments returns cached comments for the post, newest first.
	ListComments(ctx context.Context, postID string) ([]Comment, error)
	InsertComment(ctx context.Context, c Comment) error
	RemoveComment(ctx context.Context, postID, commentID string) error
}

// Service orchestrates the spam guard and the moderation filter around the
// comment storage.
type Service struct {
	Logger *slog.Logger
	Store  Store
	Cache  Cache
	Filter *moderation.Filter
	Guard  *spam.Guard

	// Now stamps accepted comments. Defaults to time.Now.
	Now func() time.Time

	submitLocks keylock.Map
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// A SubmitInput carries a validated submission. AuthorID comes from the
// authenticated caller, never from the request body.
type SubmitInput struct {
	PostID   string
	AuthorID string
	Text     string
}

// Submit runs the rate check and the banned-word check and persists the
// comment if both pass. Rejections are returned as *RejectedError; the rate
// check wins when both would reject. Accepted comments start with zero
// counters.
//
// Submissions are serialized per (author, post) so two concurrent requests
// cannot both pass the rate check at the window boundary.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Comment, error) {
	unlock := s.submitLocks.Lock(in.AuthorID + "/" + in.PostID)
	defer unlock()

	spamming, err := s.Guard.IsSpamming(ctx, in.AuthorID, in.PostID)
	if err != nil {
		return Comment{}, fmt.Errorf("spam check: %w", err)
	}
	if spamming {
		return Comment{}, &RejectedError{Reason: ReasonSpam}
	}
	if !s.Filter.Allows(in.Text) {
		return Comment{}, &RejectedError{Reason: ReasonBannedWord}
	}

	c, err := s.Store.InsertComment(ctx, Comment{
		PostID:    in.PostID,
		AuthorID:  in.AuthorID,
		Text:      in.Text,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	if err := s.Cache.InsertComment(ctx, c); err != nil {
		s.Logger.Error("Could not cache comment", "error", err.Error())
	}

	return c, nil
}

// UpdateText replaces a comment's text after re-running the moderation
// filter. The rate check does not apply to edits.
func (s *Service) UpdateText(ctx context.Context, commentID, text string) error {
	if !s.Filter.Allows(text) {
		return &RejectedError{Reason: ReasonBannedWord}
	}

	c, err := s.Store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("get comment: %w", err)
	}

	if err := s.Store.UpdateCommentText(ctx, commentID, text); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update comment: %w", err)
	}

	s.dropFromCache(ctx, c.PostID, commentID)
	return nil
}

// Delete removes a comment.
func (s *Service) Delete(ctx context.Context, commentID string) error {
	c, err := s.Store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("get comment: %w", err)
	}

	if err := s.Store.DeleteComment(ctx, commentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete comment: %w", err)
	}

	s.dropFromCache(ctx, c.PostID, commentID)
	return nil
}

// List returns all comments on a post under the given order. The latest
// ordering is served cache-first: the cache holds the newest comments, and
// the store fills in the rest excluding the cached IDs. Other orderings go
// straight to the store.
func (s *Service) List(ctx context.Context, postID string, order Order) ([]Comment, error) {
	if order != OrderLatest {
		out, err := s.Store.ListComments(ctx, postID, order)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		return out, nil
	}

	cached, err := s.Cache.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list cached comments: %w", err)
	}

	ids := make([]string, len(cached))
	for i, c := range cached {
		ids[i] = c.ID
	}

	rest, err := s.Store.ListComments(ctx, postID, OrderLatest, ids...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	return append(cached, rest...), nil
}

func (s *Service) dropFromCache(ctx context.Context, postID, commentID string) {
	if err := s.Cache.RemoveComment(ctx, postID, commentID); err != nil {
		s.Logger.Error("Could not drop comment from cache", "comment_id", commentID, "error", err.Error())
	}
}
