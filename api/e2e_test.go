package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/commentd/commentd/api/validator"
	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/engagement"
	"github.com/commentd/commentd/moderation"
	"github.com/commentd/commentd/spam"
)

// memstore is an in-memory stand-in for the Postgres layer, good enough to
// run the whole stack against.
type memstore struct {
	mu        sync.Mutex
	comments  map[string]*comments.Comment
	reactions map[string]*engagement.Reaction
	nextID    int
}

func newMemstore() *memstore {
	return &memstore{
		comments:  make(map[string]*comments.Comment),
		reactions: make(map[string]*engagement.Reaction),
	}
}

func (s *memstore) id() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *memstore) InsertComment(_ context.Context, c comments.Comment) (comments.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.comments[c.ID] = &c
	return c, nil
}

func (s *memstore) GetComment(_ context.Context, id string) (comments.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return comments.Comment{}, comments.ErrNotFound
	}
	return *c, nil
}

func (s *memstore) UpdateCommentText(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return comments.ErrNotFound
	}
	c.Text = text
	return nil
}

func (s *memstore) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return comments.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

func (s *memstore) ListComments(_ context.Context, postID string, order comments.Order, excludeIDs ...string) ([]comments.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []comments.Comment
	for _, c := range s.comments {
		if c.PostID == postID && !excluded[c.ID] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		switch order {
		case comments.OrderOldest:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case comments.OrderPopular:
			return out[i].LikeCount > out[j].LikeCount
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out, nil
}

func (s *memstore) CountCommentsBetween(_ context.Context, authorID, postID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.comments {
		if c.AuthorID == authorID && c.PostID == postID &&
			!c.CreatedAt.Before(from) && !c.CreatedAt.After(to) {
			n++
		}
	}
	return n, nil
}

func (s *memstore) GetReaction(_ context.Context, commentID, userID string) (engagement.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reactions[commentID+"/"+userID]
	if !ok {
		return engagement.Reaction{}, engagement.ErrNotFound
	}
	return *r, nil
}

func (s *memstore) InsertReaction(_ context.Context, r engagement.Reaction) (engagement.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.reactions[r.CommentID+"/"+r.UserID] = &r
	return r, nil
}

func (s *memstore) SetReactionPolarity(_ context.Context, reactionID string, isLike bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions {
		if r.ID == reactionID {
			r.IsLike = isLike
			return nil
		}
	}
	return engagement.ErrNotFound
}

func (s *memstore) AdjustCommentCounters(_ context.Context, commentID string, likeDelta, dislikeDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return comments.ErrNotFound
	}
	c.LikeCount += likeDelta
	c.DislikeCount += dislikeDelta
	return nil
}

// nopcache satisfies the cache interfaces without storing anything, so the
// latest listing is served from the store alone.
type nopcache struct{}

func (nopcache) ListComments(context.Context, string) ([]comments.Comment, error) { return nil, nil }
func (nopcache) InsertComment(context.Context, comments.Comment) error            { return nil }
func (nopcache) RemoveComment(context.Context, string, string) error              { return nil }

func newE2EServer(t *testing.T) (*httptest.Server, *memstore) {
	t.Helper()
	store := newMemstore()
	logger := slogt.New(t)
	a := &API{
		Logger: logger,
		Comments: &comments.Service{
			Logger: logger,
			Store:  store,
			Cache:  nopcache{},
			Filter: moderation.New("banned", "test2", "random"),
			Guard: &spam.Guard{
				Counter:   store,
				Window:    5 * time.Second,
				Threshold: 5,
			},
		},
		Engagement: &engagement.Ledger{
			Logger: logger,
			Store:  store,
			Cache:  nopcache{},
		},
		Auth: &testauth{},
		Val:  validator.New(),
	}
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)
	return srv, store
}

// Full lifecycle: submit, like, duplicate like, flip to dislike, list by
// popularity. The comment must end with like_count 0 and dislike_count 1.
func TestEndToEnd_CommentLifecycle(t *testing.T) {
	srv, _ := newE2EServer(t)

	resp := do(t, srv, "POST", "/comments", "valid-token", `{"text": "first!", "post_id": "post-1"}`)
	checkStatus(t, resp.StatusCode, 201)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	resp = do(t, srv, "POST", "/comments/"+created.ID+"/reactions", "valid-token", `{"is_like": true}`)
	checkStatus(t, resp.StatusCode, 201)

	resp = do(t, srv, "POST", "/comments/"+created.ID+"/reactions", "valid-token", `{"is_like": true}`)
	checkStatus(t, resp.StatusCode, 304)

	resp = do(t, srv, "POST", "/comments/"+created.ID+"/reactions", "valid-token", `{"is_like": false}`)
	checkStatus(t, resp.StatusCode, 204)

	resp = do(t, srv, "GET", "/posts/post-1/comments?filter=popular", "", "")
	checkStatus(t, resp.StatusCode, 200)
	var listed struct {
		Comments []struct {
			ID           string `json:"id"`
			LikeCount    int    `json:"like_count"`
			DislikeCount int    `json:"dislike_count"`
		} `json:"comments"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if listed.Count != 1 || len(listed.Comments) != 1 {
		t.Fatalf("Got %d comments, want 1", listed.Count)
	}
	got := listed.Comments[0]
	if got.LikeCount != 0 || got.DislikeCount != 1 {
		t.Errorf("Got counters %d/%d, want 0/1", got.LikeCount, got.DislikeCount)
	}
}

// The sixth rapid comment by the same author on the same post is rejected
// as spam.
func TestEndToEnd_SpamSuppression(t *testing.T) {
	srv, _ := newE2EServer(t)

	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"text": "comment %d", "post_id": "post-1"}`, i)
		resp := do(t, srv, "POST", "/comments", "valid-token", body)
		checkStatus(t, resp.StatusCode, 201)
	}

	resp := do(t, srv, "POST", "/comments", "valid-token", `{"text": "comment 5", "post_id": "post-1"}`)
	checkStatus(t, resp.StatusCode, 304)
	if got := resp.Header.Get("X-Rejection-Reason"); got != "spam" {
		t.Errorf("Got rejection reason %q, want spam", got)
	}

	// A different post is a separate window.
	resp = do(t, srv, "POST", "/comments", "valid-token", `{"text": "elsewhere", "post_id": "post-2"}`)
	checkStatus(t, resp.StatusCode, 201)
}

// Banned terms are rejected on create and on update, and the stored text
// never contains one.
func TestEndToEnd_Moderation(t *testing.T) {
	srv, store := newE2EServer(t)

	resp := do(t, srv, "POST", "/comments", "valid-token", `{"text": "this is banned", "post_id": "post-1"}`)
	checkStatus(t, resp.StatusCode, 304)
	if got := resp.Header.Get("X-Rejection-Reason"); got != "banned_word" {
		t.Errorf("Got rejection reason %q, want banned_word", got)
	}

	resp = do(t, srv, "POST", "/comments", "valid-token", `{"text": "clean text", "post_id": "post-1"}`)
	checkStatus(t, resp.StatusCode, 201)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	resp = do(t, srv, "PATCH", "/comments/"+created.ID, "valid-token", `{"text": "now with test2 inside"}`)
	checkStatus(t, resp.StatusCode, 304)

	c, err := store.GetComment(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Text != "clean text" {
		t.Errorf("Rejected update leaked into storage: %q", c.Text)
	}

	resp = do(t, srv, "PATCH", "/comments/"+created.ID, "valid-token", `{"text": "still clean"}`)
	checkStatus(t, resp.StatusCode, 204)
}

// Listing orders: oldest is ascending, latest (and unknown filters)
// descending, popular by like count.
func TestEndToEnd_ListOrdering(t *testing.T) {
	srv, store := newE2EServer(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := comments.Comment{
			PostID:    "post-1",
			AuthorID:  "user-1",
			Text:      fmt.Sprintf("comment %d", i),
			LikeCount: i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.InsertComment(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}

	ids := func(t *testing.T, path string) []string {
		t.Helper()
		resp := do(t, srv, "GET", path, "", "")
		checkStatus(t, resp.StatusCode, 200)
		var listed struct {
			Comments []struct {
				ID string `json:"id"`
			} `json:"comments"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatal(err)
		}
		out := make([]string, len(listed.Comments))
		for i, c := range listed.Comments {
			out[i] = c.ID
		}
		return out
	}

	check := func(t *testing.T, got, want []string) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("Got %d comments, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Position %d: got id %s, want %s", i, got[i], want[i])
			}
		}
	}

	check(t, ids(t, "/posts/post-1/comments?filter=oldest"), []string{"1", "2", "3"})
	check(t, ids(t, "/posts/post-1/comments?filter=latest"), []string{"3", "2", "1"})
	check(t, ids(t, "/posts/post-1/comments?filter=bogus"), []string{"3", "2", "1"})
	check(t, ids(t, "/posts/post-1/comments?filter=popular"), []string{"3", "2", "1"})
}
