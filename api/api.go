// Package api provides the REST endpoints for the application.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/commentd/commentd/api/validator"
	"github.com/commentd/commentd/auth"
	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/engagement"
)

// A CommentService accepts, edits, deletes and lists comments under the
// moderation and rate policies.
type CommentService interface {
	Submit(ctx context.Context, in comments.SubmitInput) (comments.Comment, error)
	UpdateText(ctx context.Context, commentID, text string) error
	Delete(ctx context.Context, commentID string) error
	List(ctx context.Context, postID string, order comments.Order) ([]comments.Comment, error)
}

// A Ledger applies like/dislike votes.
type Ledger interface {
	React(ctx context.Context, commentID, userID string, isLike bool) (engagement.Outcome, error)
}

// An Authenticator registers users and resolves bearer tokens to user IDs.
type Authenticator interface {
	Signup(ctx context.Context, username, password string) (auth.User, error)
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Authenticate(ctx context.Context, bearer string) (string, error)
}

// A PostStore persists posts.
type PostStore interface {
	InsertPost(ctx context.Context, p Post) (Post, error)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger     *slog.Logger
	Comments   CommentService
	Engagement Ledger
	Auth       Authenticator
	Posts      PostStore
	Val        *validator.Validator

	once sync.Once
	mux  *http.ServeMux
}

// rejectionHeader carries the policy rejection reason, since 304 responses
// cannot carry a body.
const rejectionHeader = "X-Rejection-Reason"

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /signup", a.signup)
	mux.HandleFunc("POST /login", a.login)
	mux.HandleFunc("POST /posts", a.requireAuth(a.createPost))
	mux.HandleFunc("GET /posts/{postID}/comments", a.listComments)
	mux.HandleFunc("POST /comments", a.requireAuth(a.createComment))
	mux.HandleFunc("PATCH /comments/{commentID}", a.requireAuth(a.updateComment))
	mux.HandleFunc("DELETE /comments/{commentID}", a.requireAuth(a.deleteComment))
	mux.HandleFunc("POST /comments/{commentID}/reactions", a.requireAuth(a.createReaction))
	mux.Handle("GET /metrics", promhttp.Handler())

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	a.mux.ServeHTTP(rec, r)
	observeRequest(r, rec.status, time.Since(start))
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondRejected answers a policy rejection: 304 with the reason in a
// header.
func (a *API) respondRejected(w http.ResponseWriter, reason comments.Reason) {
	a.Logger.Info("Submission rejected", "reason", string(reason))
	w.Header().Set(rejectionHeader, string(reason))
	w.WriteHeader(http.StatusNotModified)
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, s interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(s); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return false
	}
	return a.validateBody(w, s)
}

// requireAuth resolves the bearer token and hands the user ID to the
// handler. The services trust this identity.
func (a *API) requireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if bearer == "" || bearer == r.Header.Get("Authorization") {
			a.respondError(w, http.StatusUnauthorized, errors.New("missing bearer token"), "Missing bearer token")
			return
		}
		userID, err := a.Auth.Authenticate(r.Context(), bearer)
		if err != nil {
			a.respondError(w, http.StatusUnauthorized, err, "Invalid or expired token")
			return
		}
		next(w, r, userID)
	}
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			ID       string `json:"id" validate:"required"`
			Password string `json:"password" validate:"required,min=4"`
		}
		response struct {
			ID        string    `json:"id"`
			Username  string    `json:"username"`
			CreatedAt time.Time `json:"created_at"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	u, err := a.Auth.Signup(r.Context(), body.ID, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			a.respondError(w, http.StatusBadRequest, err, "User already exists")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not create user")
		return
	}

	a.respond(w, http.StatusCreated, response{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			ID       string `json:"id" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		response struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	t, err := a.Auth.Login(r.Context(), body.ID, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.respondError(w, http.StatusBadRequest, err, "Invalid credentials")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}

	a.respond(w, http.StatusOK, response{
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
	})
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request, userID string) {
	type request struct {
		Title   string `json:"title" validate:"required"`
		Content string `json:"content" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	p, err := a.Posts.InsertPost(r.Context(), Post{
		Title:    body.Title,
		Content:  body.Content,
		AuthorID: userID,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert post")
		return
	}

	a.respond(w, http.StatusCreated, p)
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request, userID string) {
	type request struct {
		Text   string `json:"text" validate:"required"`
		PostID string `json:"post_id" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	c, err := a.Comments.Submit(r.Context(), comments.SubmitInput{
		PostID:   body.PostID,
		AuthorID: userID,
		Text:     body.Text,
	})
	if err != nil {
		var rejected *comments.RejectedError
		if errors.As(err, &rejected) {
			a.respondRejected(w, rejected.Reason)
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert comment")
		return
	}

	a.respond(w, http.StatusCreated, toCommentBody(c))
}

func (a *API) updateComment(w http.ResponseWriter, r *http.Request, _ string) {
	type request struct {
		Text string `json:"text" validate:"required"`
	}

	commentID := r.PathValue("commentID")
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	err := a.Comments.UpdateText(r.Context(), commentID, body.Text)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, comments.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Comment not found")
	default:
		var rejected *comments.RejectedError
		if errors.As(err, &rejected) {
			a.respondRejected(w, rejected.Reason)
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not update comment")
	}
}

func (a *API) deleteComment(w http.ResponseWriter, r *http.Request, _ string) {
	commentID := r.PathValue("commentID")

	err := a.Comments.Delete(r.Context(), commentID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, comments.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Comment not found")
	default:
		a.respondError(w, http.StatusInternalServerError, err, "Could not delete comment")
	}
}

func (a *API) createReaction(w http.ResponseWriter, r *http.Request, userID string) {
	type (
		request struct {
			IsLike *bool `json:"is_like" validate:"required"`
		}
		response struct {
			CommentID string `json:"comment_id"`
			IsLike    bool   `json:"is_like"`
		}
	)

	commentID := r.PathValue("commentID")
	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	outcome, err := a.Engagement.React(r.Context(), commentID, userID, *body.IsLike)
	if err != nil {
		if errors.Is(err, comments.ErrNotFound) {
			a.respondError(w, http.StatusNotFound, err, "Comment not found")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not record reaction")
		return
	}

	switch outcome {
	case engagement.OutcomeCreated:
		a.respond(w, http.StatusCreated, response{CommentID: commentID, IsLike: *body.IsLike})
	case engagement.OutcomeFlipped:
		w.WriteHeader(http.StatusNoContent)
	case engagement.OutcomeDuplicate:
		w.WriteHeader(http.StatusNotModified)
	}
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Comments []commentBody `json:"comments"`
		Count    int           `json:"count"`
	}

	postID := r.PathValue("postID")
	order := comments.ParseOrder(r.URL.Query().Get("filter"))

	items, err := a.Comments.List(r.Context(), postID, order)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list comments")
		return
	}

	out := make([]commentBody, len(items))
	for i, c := range items {
		out[i] = toCommentBody(c)
	}

	a.respond(w, http.StatusOK, response{
		Comments: out,
		Count:    len(out),
	})
}
