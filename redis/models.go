package redis

import (
	"time"

	"github.com/commentd/commentd/comments"
)

// A comment represents a cached comment hash.
type comment struct {
	ID           string    `redis:"id"`
	Text         string    `redis:"text"`
	AuthorID     string    `redis:"author_id"`
	PostID       string    `redis:"post_id"`
	LikeCount    int       `redis:"like_count"`
	DislikeCount int       `redis:"dislike_count"`
	CreatedAt    time.Time `redis:"created_at"`
}

func (c comment) Comment() comments.Comment {
	return comments.Comment{
		ID:           c.ID,
		PostID:       c.PostID,
		AuthorID:     c.AuthorID,
		Text:         c.Text,
		LikeCount:    c.LikeCount,
		DislikeCount: c.DislikeCount,
		CreatedAt:    c.CreatedAt,
	}
}
