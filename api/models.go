package api

import (
	"time"

	"github.com/commentd/commentd/comments"
)

// A Post is a top-level entry users comment on. Posts carry no business
// rules here; they exist so comments have something to hang off.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// commentBody is the wire shape of a comment.
type commentBody struct {
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	AuthorID     string    `json:"author_id"`
	Text         string    `json:"text"`
	LikeCount    int       `json:"like_count"`
	DislikeCount int       `json:"dislike_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCommentBody(c comments.Comment) commentBody {
	return commentBody{
		ID:           c.ID,
		PostID:       c.PostID,
		AuthorID:     c.AuthorID,
		Text:         c.Text,
		LikeCount:    c.LikeCount,
		DislikeCount: c.DislikeCount,
		CreatedAt:    c.CreatedAt,
	}
}
