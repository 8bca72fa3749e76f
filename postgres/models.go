package postgres

import (
	"time"

	"github.com/commentd/commentd/api"
	"github.com/commentd/commentd/auth"
	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/engagement"
)

// A user represents an account in the database.
type user struct {
	ID           string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	Username     string    `bun:",notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:",nullzero,default:now()"`
}

type post struct {
	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	Title     string    `bun:",notnull"`
	Content   string    `bun:",notnull"`
	AuthorID  string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

// A comment represents a comment in the database. The counters are only
// touched through conditional updates.
type comment struct {
	ID           string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	CommentText  string    `bun:"comment_text,notnull"`
	AuthorID     string    `bun:",notnull"`
	PostID       string    `bun:",notnull"`
	LikeCount    int       `bun:"like_count,notnull,default:0"`
	DislikeCount int       `bun:"dislike_count,notnull,default:0"`
	CreatedAt    time.Time `bun:",nullzero,default:now()"`
}

// A reaction holds one voter's stance on one comment. The unique index over
// (comment_id, user_id) enforces the one-row-per-voter invariant.
type reaction struct {
	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	CommentID string    `bun:",notnull,unique:comment_voter"`
	UserID    string    `bun:",notnull,unique:comment_voter"`
	IsLike    bool      `bun:"is_like,notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

type token struct {
	Token     string    `bun:",pk"`
	UserID    string    `bun:",notnull"`
	ExpiresAt time.Time `bun:",notnull"`
}

func (u user) AuthUser() auth.User {
	return auth.User{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func (p post) APIPost() api.Post {
	return api.Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		CreatedAt: p.CreatedAt,
	}
}

func (c comment) Comment() comments.Comment {
	return comments.Comment{
		ID:           c.ID,
		PostID:       c.PostID,
		AuthorID:     c.AuthorID,
		Text:         c.CommentText,
		LikeCount:    c.LikeCount,
		DislikeCount: c.DislikeCount,
		CreatedAt:    c.CreatedAt,
	}
}

func (r reaction) Reaction() engagement.Reaction {
	return engagement.Reaction{
		ID:        r.ID,
		CommentID: r.CommentID,
		UserID:    r.UserID,
		IsLike:    r.IsLike,
		CreatedAt: r.CreatedAt,
	}
}
