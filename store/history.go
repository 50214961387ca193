package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ragchat/rag"
)

// ErrNotFound is returned when an exchange does not exist.
var ErrNotFound = errors.New("exchange not found")

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 20

// Exchange is one answered question.
type Exchange struct {
	ID        string               `json:"id"`
	Question  string               `json:"question"`
	Query     *rag.StructuredQuery `json:"query,omitempty"`
	Answer    string               `json:"answer"`
	Outcome   string               `json:"outcome,omitempty"`
	Sources   []string             `json:"sources,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewExchange records state with a fresh ID and the current time.
func NewExchange(state rag.State, outcome string) *Exchange {
	var query *rag.StructuredQuery
	if state.Query != nil {
		q := *state.Query
		query = &q
	}
	return &Exchange{
		ID:        uuid.NewString(),
		Question:  state.Question,
		Query:     query,
		Answer:    state.Answer,
		Outcome:   outcome,
		Sources:   state.Sources(),
		CreatedAt: time.Now().UTC(),
	}
}

// HistoryStore defines the interface for exchange persistence
type HistoryStore interface {
	// Save stores an exchange, replacing one with the same ID
	Save(ctx context.Context, exchange *Exchange) error

	// Load retrieves an exchange by ID
	Load(ctx context.Context, id string) (*Exchange, error)

	// List returns up to limit exchanges, newest first
	List(ctx context.Context, limit int) ([]*Exchange, error)

	// Delete removes an exchange
	Delete(ctx context.Context, id string) error

	// Clear removes every exchange
	Clear(ctx context.Context) error
}

// Limit normalizes a List limit.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
