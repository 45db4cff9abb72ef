// Package notify is the per-user change-notification relay. Every mutation
// publishes a "<kind>_updated" event; the hub fans it out to the owning
// user's live connections only, including the connection whose request
// caused it. Delivery is best-effort at-most-once: no group, no queueing,
// no replay after reconnect.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event is one change notification. Payload carries the mutated document for
// create/update and the bare id for delete; receivers treat it as
// informational and refetch rather than merging it.
type Event struct {
	ID      string
	Kind    string
	Action  string
	Payload json.RawMessage
}

// NewEvent stamps the event with a ULID for log correlation. The id carries
// no ordering guarantee across hub instances.
func NewEvent(kind, action string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s %s payload: %w", kind, action, err)
	}
	return Event{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Action:  action,
		Payload: raw,
	}, nil
}

// Name returns the wire event name, "<kind>_updated".
func (e Event) Name() string { return e.Kind + "_updated" }

// The wire shape keys the payload by the resource kind itself:
// {"id": ..., "event": "task_updated", "action": "create", "task": {...}}.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"id":     e.ID,
		"event":  e.Name(),
		"action": e.Action,
		e.Kind:   e.Payload,
	}
	return json.Marshal(m)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var name string
	if err := json.Unmarshal(m["event"], &name); err != nil {
		return fmt.Errorf("event name: %w", err)
	}
	if !strings.HasSuffix(name, "_updated") {
		return fmt.Errorf("unexpected event name %q", name)
	}
	e.Kind = strings.TrimSuffix(name, "_updated")
	if raw, ok := m["id"]; ok {
		if err := json.Unmarshal(raw, &e.ID); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(m["action"], &e.Action); err != nil {
		return fmt.Errorf("event action: %w", err)
	}
	e.Payload = m[e.Kind]
	return nil
}

// Hub is the connection registry: a lock-guarded multimap from user id to
// live connections. It is constructor-built and injected, never a package
// singleton, so tests can stand up their own.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: map[string]map[*Conn]struct{}{}}
}

func (h *Hub) subscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[c.userID]
	if !ok {
		group = map[*Conn]struct{}{}
		h.groups[c.userID] = group
	}
	group[c] = struct{}{}
	glog.V(2).Infof("[hub] +conn user=%s conns=%d", c.userID, len(group))
}

func (h *Hub) unsubscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[c.userID]
	if !ok {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, c.userID)
	}
	glog.V(2).Infof("[hub] -conn user=%s conns=%d", c.userID, len(group))
}

// Publish delivers the event to every live connection in userID's group.
// With no group the event is dropped. A connection too slow to drain its
// send buffer is closed rather than allowed to stall the fan-out.
func (h *Hub) Publish(userID string, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		glog.Errorf("[hub] marshal event %s: %v", event.ID, err)
		return
	}

	h.mu.RLock()
	group := h.groups[userID]
	conns := make([]*Conn, 0, len(group))
	for c := range group {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		glog.V(2).Infof("[hub] drop %s %s user=%s: no connections", event.Name(), event.ID, userID)
		return
	}

	for _, c := range conns {
		select {
		case <-c.done:
		case c.send <- msg:
		default:
			glog.Infof("[hub] backpressure, closing conn user=%s", userID)
			c.closeSlow()
		}
	}
	glog.V(2).Infof("[hub] %s %s user=%s fanout=%d", event.Name(), event.ID, userID, len(conns))
}

// Connections reports the live connection count for a user.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}
