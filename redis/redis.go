// Package redis caches the newest comments of each post in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commentd/commentd/comments"
)

// Redis provides caching in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// maxSize caps how many comments are cached per post. The oldest entries
// fall out first.
const maxSize = 10

func postKey(postID string) string {
	return fmt.Sprintf("post:%s:comments", postID)
}

func commentKey(commentID string) string {
	return fmt.Sprintf("comment:%s", commentID)
}

// ListComments returns the cached comments of a post, newest first.
func (r *Redis) ListComments(ctx context.Context, postID string) ([]comments.Comment, error) {
	vals, err := r.cli.ZRevRangeByScore(ctx, postKey(postID), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}

	out := make([]comments.Comment, len(vals))
	for i, key := range vals {
		var c comment
		if err := r.cli.HGetAll(ctx, key).Scan(&c); err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		out[i] = c.Comment()
	}

	return out, nil
}

// InsertComment adds the comment hash under comment:COMMENT_ID and indexes
// the key in the post's sorted set, scored by creation time.
func (r *Redis) InsertComment(ctx context.Context, cm comments.Comment) error {
	c := &comment{
		ID:           cm.ID,
		Text:         cm.Text,
		AuthorID:     cm.AuthorID,
		PostID:       cm.PostID,
		LikeCount:    cm.LikeCount,
		DislikeCount: cm.DislikeCount,
		CreatedAt:    cm.CreatedAt,
	}

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			key := commentKey(c.ID)
			pipe.HSet(ctx, key, c)
			pipe.ZAdd(ctx, postKey(c.PostID), redis.Z{
				Score:  float64(cm.CreatedAt.UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}, c.ID)

	if err != nil {
		return fmt.Errorf("redis insert comment: %w", err)
	}

	if err := r.evictOldest(ctx, cm.PostID); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// RemoveComment drops a comment from the cache. Used when a comment is
// edited, deleted, or its counters change, so stale copies are never served.
func (r *Redis) RemoveComment(ctx context.Context, postID, commentID string) error {
	key := commentKey(commentID)
	if err := r.cli.ZRem(ctx, postKey(postID), key).Err(); err != nil {
		return fmt.Errorf("zrem: %w", err)
	}
	if err := r.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (r *Redis) evictOldest(ctx context.Context, postID string) error {
	vals, err := r.cli.ZRange(ctx, postKey(postID), 0, int64(-maxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}

	for _, key := range vals {
		_ = r.cli.ZRem(ctx, postKey(postID), key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}

	return nil
}
