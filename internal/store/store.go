// Package store is the document persistence layer. Every resource is a JSON
// document keyed by (kind, id) and stamped with its owner; list reads filter
// by owner, point reads return whatever is there so the service layer can
// tell "gone" apart from "not yours". All writes are atomic per document;
// there are no multi-document transactions, so concurrent edits resolve
// last-write-wins.
package store

import (
	"context"
	"errors"
	"time"
)

// Resource kinds. Users ride in the same store keyed by username.
const (
	KindTask         = "task"
	KindHabit        = "habit"
	KindChallenge    = "challenge"
	KindFocusSession = "focus_session"
	KindProject      = "project"
	KindEvent        = "event"
	KindUser         = "user"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// Document is the stored unit. Data holds the marshaled resource; TS is the
// kind's primary timestamp when the kind supports range reads (events, focus
// sessions), nil otherwise.
type Document struct {
	Kind      string
	Owner     string
	ID        string
	TS        *time.Time
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	// Get returns the document with the given kind and id, or ErrNotFound.
	Get(ctx context.Context, kind, id string) (*Document, error)
	// List returns all of owner's documents of kind in insertion order.
	List(ctx context.Context, kind, owner string) ([]*Document, error)
	// ListRange returns owner's documents whose TS falls within [start, end]
	// inclusive, ascending by TS. Documents with no TS are skipped.
	ListRange(ctx context.Context, kind, owner string, start, end time.Time) ([]*Document, error)
	// Insert adds a new document, setting CreatedAt/UpdatedAt. ErrExists if
	// the (kind, id) key is taken.
	Insert(ctx context.Context, doc *Document) error
	// Update replaces an existing document's Data and TS, bumping UpdatedAt.
	// ErrNotFound if absent.
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, kind, id string) error
	Close() error
}
