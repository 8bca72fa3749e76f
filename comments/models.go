package comments

import (
	"errors"
	"time"
)

// A Comment is a persisted comment on a post. The counters are maintained by
// the engagement ledger and never go negative.
type Comment struct {
	ID           string
	PostID       string
	AuthorID     string
	Text         string
	LikeCount    int
	DislikeCount int
	CreatedAt    time.Time
}

// An Order names a whitelisted listing policy.
type Order string

const (
	OrderLatest  Order = "latest"
	OrderOldest  Order = "oldest"
	OrderPopular Order = "popular"
)

// ParseOrder maps a client-supplied filter onto an Order. Anything outside
// the whitelist, including the empty string, falls back to OrderLatest.
func ParseOrder(s string) Order {
	switch Order(s) {
	case OrderOldest:
		return OrderOldest
	case OrderPopular:
		return OrderPopular
	default:
		return OrderLatest
	}
}

// ErrNotFound is returned when the target comment does not exist.
var ErrNotFound = errors.New("comment not found")

// A Reason says which policy rejected a submission.
type Reason string

const (
	ReasonSpam       Reason = "spam"
	ReasonBannedWord Reason = "banned_word"
)

// A RejectedError is a policy outcome, not a failure: the submission was
// understood and turned down.
type RejectedError struct {
	Reason Reason
}

func (e *RejectedError) Error() string {
	return "comment rejected: " + string(e.Reason)
}
