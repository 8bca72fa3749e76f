// Package postgres provides storage in PostgreSQL for every service in the
// application.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/commentd/commentd/api"
	"github.com/commentd/commentd/auth"
	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/engagement"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

const uniqueViolation = "23505"

// InsertComment inserts a comment. The returned comment holds auto generated
// fields, such as the comment id.
func (pg *Postgres) InsertComment(ctx context.Context, c comments.Comment) (comments.Comment, error) {
	m := &comment{
		CommentText: c.Text,
		AuthorID:    c.AuthorID,
		PostID:      c.PostID,
		CreatedAt:   c.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return comments.Comment{}, fmt.Errorf("insert: %w", err)
	}
	return m.Comment(), nil
}

// GetComment returns a single comment by id.
func (pg *Postgres) GetComment(ctx context.Context, id string) (comments.Comment, error) {
	var m comment
	err := pg.bun.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return comments.Comment{}, comments.ErrNotFound
		}
		return comments.Comment{}, fmt.Errorf("scan: %w", err)
	}
	return m.Comment(), nil
}

// UpdateCommentText replaces the comment's text.
func (pg *Postgres) UpdateCommentText(ctx context.Context, id, text string) error {
	res, err := pg.bun.NewUpdate().
		Model((*comment)(nil)).
		Set("comment_text = ?", text).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return checkAffected(res, comments.ErrNotFound)
}

// DeleteComment removes a comment and its reactions.
func (pg *Postgres) DeleteComment(ctx context.Context, id string) error {
	if _, err := pg.bun.NewDelete().
		Model((*reaction)(nil)).
		Where("comment_id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}
	res, err := pg.bun.NewDelete().
		Model((*comment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return checkAffected(res, comments.ErrNotFound)
}

// ListComments returns all comments on a post under the given order,
// skipping any excluded ids.
func (pg *Postgres) ListComments(ctx context.Context, postID string, order comments.Order, excludeIDs ...string) ([]comments.Comment, error) {
	var ms []comment
	q := pg.bun.NewSelect().
		Model(&ms).
		Where("post_id = ?", postID).
		Order(orderClause(order))

	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(excludeIDs))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return lo.Map(ms, func(m comment, _ int) comments.Comment {
		return m.Comment()
	}), nil
}

func orderClause(order comments.Order) string {
	switch order {
	case comments.OrderOldest:
		return "created_at ASC"
	case comments.OrderPopular:
		return "like_count DESC"
	default:
		return "created_at DESC"
	}
}

// CountCommentsBetween counts comments by an author on a post inside the
// given time range. Both bounds are inclusive.
func (pg *Postgres) CountCommentsBetween(ctx context.Context, authorID, postID string, from, to time.Time) (int, error) {
	count, err := pg.bun.NewSelect().
		Model((*comment)(nil)).
		Where("author_id = ?", authorID).
		Where("post_id = ?", postID).
		Where("created_at BETWEEN ? AND ?", from, to).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// AdjustCommentCounters applies the deltas to the comment's counters in one
// conditional update, avoiding any read-modify-write at the caller.
func (pg *Postgres) AdjustCommentCounters(ctx context.Context, commentID string, likeDelta, dislikeDelta int) error {
	res, err := pg.bun.NewUpdate().
		Model((*comment)(nil)).
		Set("like_count = like_count + ?", likeDelta).
		Set("dislike_count = dislike_count + ?", dislikeDelta).
		Where("id = ?", commentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return checkAffected(res, comments.ErrNotFound)
}

// GetReaction returns the voter's reaction on a comment.
func (pg *Postgres) GetReaction(ctx context.Context, commentID, userID string) (engagement.Reaction, error) {
	var r reaction
	err := pg.bun.NewSelect().
		Model(&r).
		Where("comment_id = ?", commentID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engagement.Reaction{}, engagement.ErrNotFound
		}
		return engagement.Reaction{}, fmt.Errorf("scan: %w", err)
	}
	return r.Reaction(), nil
}

// InsertReaction inserts a comment reaction.
func (pg *Postgres) InsertReaction(ctx context.Context, er engagement.Reaction) (engagement.Reaction, error) {
	rm := &reaction{
		CommentID: er.CommentID,
		UserID:    er.UserID,
		IsLike:    er.IsLike,
		CreatedAt: er.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(rm).Exec(ctx); err != nil {
		return engagement.Reaction{}, fmt.Errorf("insert: %w", err)
	}
	return rm.Reaction(), nil
}

// SetReactionPolarity flips an existing reaction.
func (pg *Postgres) SetReactionPolarity(ctx context.Context, reactionID string, isLike bool) error {
	res, err := pg.bun.NewUpdate().
		Model((*reaction)(nil)).
		Set("is_like = ?", isLike).
		Where("id = ?", reactionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return checkAffected(res, engagement.ErrNotFound)
}

// CreateUser inserts an account.
func (pg *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (auth.User, error) {
	u := &user{
		Username:     username,
		PasswordHash: passwordHash,
	}
	if _, err := pg.bun.NewInsert().Model(u).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
			return auth.User{}, auth.ErrUserExists
		}
		return auth.User{}, fmt.Errorf("insert: %w", err)
	}
	return u.AuthUser(), nil
}

// GetUserByUsername returns the account and its password hash.
func (pg *Postgres) GetUserByUsername(ctx context.Context, username string) (auth.User, string, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, "", auth.ErrNotFound
		}
		return auth.User{}, "", fmt.Errorf("scan: %w", err)
	}
	return u.AuthUser(), u.PasswordHash, nil
}

// CreateToken stores a bearer token.
func (pg *Postgres) CreateToken(ctx context.Context, t auth.Token) error {
	m := &token{
		Token:     t.Token,
		UserID:    t.UserID,
		ExpiresAt: t.ExpiresAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// GetToken looks up a bearer token.
func (pg *Postgres) GetToken(ctx context.Context, value string) (auth.Token, error) {
	var m token
	err := pg.bun.NewSelect().
		Model(&m).
		Where("token = ?", value).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Token{}, auth.ErrNotFound
		}
		return auth.Token{}, fmt.Errorf("scan: %w", err)
	}
	return auth.Token{Token: m.Token, UserID: m.UserID, ExpiresAt: m.ExpiresAt}, nil
}

// InsertPost inserts a post. The returned post holds auto generated fields.
func (pg *Postgres) InsertPost(ctx context.Context, p api.Post) (api.Post, error) {
	m := &post{
		Title:    p.Title,
		Content:  p.Content,
		AuthorID: p.AuthorID,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return api.Post{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIPost(), nil
}

func checkAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
