// Package session tracks one action's journey through the workflow and
// persists it behind a Store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/humanloop/internal/model"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned by Store.Update when the stored version does
	// not match the expected version.
	ErrConflict = errors.New("session version conflict")

	// ErrTerminal is returned when a transition is attempted on a session
	// that has reached COMPLETED, REJECTED, or ABORTED.
	ErrTerminal = errors.New("session is in a terminal state")

	// ErrExists is returned by Store.Create for a duplicate id.
	ErrExists = errors.New("session already exists")
)

// TrailEntry records one transition attempt and the three verdicts behind it.
type TrailEntry struct {
	At                time.Time             `json:"at"`
	Transition        model.StateTransition `json:"transition"`
	Actor             model.ActorKind       `json:"actor"`
	From              model.WorkflowState   `json:"from"`
	To                model.WorkflowState   `json:"to,omitempty"`
	Validation        model.Decision        `json:"validation"`
	ValidationRule    string                `json:"validation_rule"`
	TransitionAllowed bool                  `json:"transition_allowed"`
	TransitionRule    string                `json:"transition_rule"`
	Decision          model.Decision        `json:"decision"`
	DecisionRule      string                `json:"decision_rule"`
	Reason            string                `json:"reason"`
}

// Advanced reports whether this attempt moved the session.
func (e TrailEntry) Advanced() bool { return e.To != "" }

// Session is one action request moving through the workflow.
type Session struct {
	ID        string              `json:"id"`
	Request   model.ActionRequest `json:"request"`
	State     model.WorkflowState `json:"state"`
	Version   int64               `json:"version"`
	Trail     []TrailEntry        `json:"trail"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Trail != nil {
		c.Trail = make([]TrailEntry, len(s.Trail))
		copy(c.Trail, s.Trail)
	}
	return &c
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new session. Returns ErrExists for a duplicate id.
	Create(ctx context.Context, s *Session) error

	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Update replaces the session if its stored version equals
	// expectedVersion, and sets s.Version to expectedVersion+1.
	// Returns ErrConflict on a version mismatch and ErrNotFound when the
	// session does not exist.
	Update(ctx context.Context, s *Session, expectedVersion int64) error

	// List returns every session ordered by creation time, oldest first.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}
