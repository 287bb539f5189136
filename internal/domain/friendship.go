package domain

import (
	"time"

	"github.com/google/uuid"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// Friendship is stored directionally. For pending rows UserID1 is the
// requester; for blocked rows UserID1 is the user who placed the block.
type Friendship struct {
	ID          uuid.UUID        `json:"id"`
	UserID1     uuid.UUID        `json:"user_id1"`
	UserID2     uuid.UUID        `json:"user_id2"`
	Status      FriendshipStatus `json:"status"`
	RequestedBy uuid.UUID        `json:"requested_by"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	// Joined fields
	Other *UserSummary `json:"other,omitempty"`
}

// OtherUser returns the side of the relationship that is not userID.
func (f *Friendship) OtherUser(userID uuid.UUID) uuid.UUID {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}

// Relation is both directional rows between two users, either may be nil.
type Relation struct {
	Forward *Friendship // stored as (a, b)
	Reverse *Friendship // stored as (b, a)
}

func (r Relation) rows() []*Friendship {
	out := make([]*Friendship, 0, 2)
	if r.Forward != nil {
		out = append(out, r.Forward)
	}
	if r.Reverse != nil {
		out = append(out, r.Reverse)
	}
	return out
}

// Any returns the first live row in either direction.
func (r Relation) Any() *Friendship {
	if rows := r.rows(); len(rows) > 0 {
		return rows[0]
	}
	return nil
}

// AreFriends reports whether either direction is accepted.
func (r Relation) AreFriends() bool {
	for _, f := range r.rows() {
		if f.Status == FriendshipAccepted {
			return true
		}
	}
	return false
}

// BlockedBy reports whether userID holds a block on the other side.
func (r Relation) BlockedBy(userID uuid.UUID) bool {
	for _, f := range r.rows() {
		if f.Status == FriendshipBlocked && f.UserID1 == userID {
			return true
		}
	}
	return false
}
