// Package service implements the owner-scoped resource operations shared by
// all six kinds: list, range list, create, partial update, delete. Every
// mutation publishes a change event to the owner's notification group after
// the write lands. Store failures propagate untouched; nothing here retries,
// because mutations are not idempotent by id reuse.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/youngoldiamond/lifetracker/internal/notify"
	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

var (
	ErrNotFound   = errors.New("service: not found")
	ErrForbidden  = errors.New("service: not the owner")
	ErrValidation = errors.New("service: validation failed")
)

// Entity is any pointer resource type carrying server-owned metadata.
type Entity interface {
	GetMeta() *types.Meta
}

// Patch applies partial updates; nil fields leave the entity untouched.
type Patch[P Entity] interface {
	Apply(P) error
}

// Publisher is the change-notification sink. *notify.Hub satisfies it; tests
// substitute their own.
type Publisher interface {
	Publish(userID string, event notify.Event)
}

// Config describes one resource kind.
type Config[P Entity] struct {
	Kind string
	New  func() P
	// Defaults fills kind defaults on create, before validation.
	Defaults func(P)
	// Validate runs at create and again after every patch merge.
	Validate func(P) error
	// PrimaryTS, when set, marks the kind range-queryable and yields the
	// timestamp documents are ranged and sorted on.
	PrimaryTS func(P) *time.Time
	// NewPatch produces the kind's empty patch for request binding.
	NewPatch func() Patch[P]
}

type Service[P Entity] struct {
	cfg   Config[P]
	store store.Store
	pub   Publisher
}

func New[P Entity](cfg Config[P], st store.Store, pub Publisher) *Service[P] {
	return &Service[P]{cfg: cfg, store: st, pub: pub}
}

func (s *Service[P]) Kind() string { return s.cfg.Kind }

// RangeQueryable reports whether ListRange is supported for this kind.
func (s *Service[P]) RangeQueryable() bool { return s.cfg.PrimaryTS != nil }

// NewEntity returns an empty resource for request binding.
func (s *Service[P]) NewEntity() P { return s.cfg.New() }

// NewPatch returns the kind's empty patch for request binding.
func (s *Service[P]) NewPatch() Patch[P] { return s.cfg.NewPatch() }

func (s *Service[P]) decode(doc *store.Document) (P, error) {
	entity := s.cfg.New()
	if err := json.Unmarshal(doc.Data, entity); err != nil {
		var zero P
		return zero, fmt.Errorf("decode %s %s: %w", doc.Kind, doc.ID, err)
	}
	m := entity.GetMeta()
	m.ID = doc.ID
	m.Owner = doc.Owner
	m.CreatedAt = doc.CreatedAt
	m.UpdatedAt = doc.UpdatedAt
	return entity, nil
}

func (s *Service[P]) encode(entity P) (*store.Document, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.cfg.Kind, err)
	}
	m := entity.GetMeta()
	doc := &store.Document{
		Kind:  s.cfg.Kind,
		Owner: m.Owner,
		ID:    m.ID,
		Data:  data,
	}
	if s.cfg.PrimaryTS != nil {
		doc.TS = s.cfg.PrimaryTS(entity)
	}
	return doc, nil
}

// List returns every resource the owner has, in insertion order. Callers
// filter client-side; there is no server-side filtering or pagination.
func (s *Service[P]) List(ctx context.Context, owner string) ([]P, error) {
	docs, err := s.store.List(ctx, s.cfg.Kind, owner)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(docs)
}

// ListRange returns the owner's resources whose primary timestamp falls in
// [start, end] inclusive, ascending.
func (s *Service[P]) ListRange(ctx context.Context, owner string, start, end time.Time) ([]P, error) {
	if s.cfg.PrimaryTS == nil {
		return nil, fmt.Errorf("%s: %w: kind has no range query", s.cfg.Kind, ErrValidation)
	}
	docs, err := s.store.ListRange(ctx, s.cfg.Kind, owner, start, end)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(docs)
}

func (s *Service[P]) decodeAll(docs []*store.Document) ([]P, error) {
	out := make([]P, 0, len(docs))
	for _, doc := range docs {
		entity, err := s.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// Create assigns id and owner, applies kind defaults, validates, persists,
// and announces the new document to the owner's sessions.
func (s *Service[P]) Create(ctx context.Context, owner string, entity P) (P, error) {
	var zero P

	m := entity.GetMeta()
	m.ID = uuid.NewString()
	m.Owner = owner
	if s.cfg.Defaults != nil {
		s.cfg.Defaults(entity)
	}
	if s.cfg.Validate != nil {
		if err := s.cfg.Validate(entity); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	doc, err := s.encode(entity)
	if err != nil {
		return zero, err
	}
	if err := s.store.Insert(ctx, doc); err != nil {
		return zero, err
	}
	m.CreatedAt = doc.CreatedAt
	m.UpdatedAt = doc.UpdatedAt

	s.publish(owner, notify.ActionCreate, entity)
	return entity, nil
}

// Update merges the non-nil patch fields into the stored document. Not-found
// and wrong-owner are distinct failures; a non-owner never gets a silent
// no-op.
func (s *Service[P]) Update(ctx context.Context, owner, id string, patch Patch[P]) (P, error) {
	var zero P

	doc, err := s.store.Get(ctx, s.cfg.Kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, err
	}
	if doc.Owner != owner {
		return zero, fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrForbidden)
	}

	entity, err := s.decode(doc)
	if err != nil {
		return zero, err
	}
	if err := patch.Apply(entity); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if s.cfg.Validate != nil {
		if err := s.cfg.Validate(entity); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	updated, err := s.encode(entity)
	if err != nil {
		return zero, err
	}
	if err := s.store.Update(ctx, updated); err != nil {
		return zero, err
	}
	entity.GetMeta().UpdatedAt = updated.UpdatedAt

	s.publish(owner, notify.ActionUpdate, entity)
	return entity, nil
}

// Get returns one resource after the ownership check.
func (s *Service[P]) Get(ctx context.Context, owner, id string) (P, error) {
	var zero P

	doc, err := s.store.Get(ctx, s.cfg.Kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, err
	}
	if doc.Owner != owner {
		return zero, fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrForbidden)
	}
	return s.decode(doc)
}

// Delete removes the resource and announces the deleted id. Deleting twice
// fails with not-found the second time.
func (s *Service[P]) Delete(ctx context.Context, owner, id string) error {
	doc, err := s.store.Get(ctx, s.cfg.Kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if doc.Owner != owner {
		return fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrForbidden)
	}

	if err := s.store.Delete(ctx, s.cfg.Kind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s %s: %w", s.cfg.Kind, id, ErrNotFound)
		}
		return err
	}

	s.publish(owner, notify.ActionDelete, id)
	return nil
}

func (s *Service[P]) publish(owner, action string, payload any) {
	event, err := notify.NewEvent(s.cfg.Kind, action, payload)
	if err != nil {
		glog.Errorf("[service] %v", err)
		return
	}
	s.pub.Publish(owner, event)
}
