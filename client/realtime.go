package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/youngoldiamond/lifetracker/internal/notify"
	"github.com/youngoldiamond/lifetracker/internal/store"
)

const (
	backoffInitial = 500 * time.Millisecond
	backoffMax     = 30 * time.Second
)

// kindResources maps wire event kinds to collection resources.
var kindResources = map[string]string{
	store.KindTask:         "tasks",
	store.KindHabit:        "habits",
	store.KindChallenge:    "challenges",
	store.KindFocusSession: "focus-sessions",
	store.KindProject:      "projects",
	store.KindEvent:        "events",
}

// Subscribe connects to the realtime channel and keeps the caches honest:
// every matching change notification invalidates the kind's collection and
// schedules a refetch. The server replays nothing after a drop, so
// reconnects refetch everything; that is safe because reads are pure.
// Subscribe blocks until ctx is cancelled, redialing with capped exponential
// backoff in between; run it on its own goroutine.
func (c *Client) Subscribe(ctx context.Context, onChange func(notify.Event)) {
	backoff := backoffInitial
	for {
		connected, err := c.runSubscription(ctx, onChange)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = backoffInitial
			// The link was up and dropped; notifications may have been
			// missed, and missed means gone. Resync everything.
			c.invalidateAll()
		}
		glog.V(2).Infof("[client] realtime disconnected: %v, redial in %v", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.Token()}}.Encode()
	return u.String(), nil
}

// runSubscription holds one connection for its lifetime. The bool reports
// whether the dial succeeded, so the caller knows to reset backoff.
func (c *Client) runSubscription(ctx context.Context, onChange func(notify.Event)) (bool, error) {
	wsURL, err := c.wsURL()
	if err != nil {
		return false, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	// Kill the blocking read when ctx goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		var event notify.Event
		if err := json.Unmarshal(msg, &event); err != nil {
			glog.Infof("[client] bad notification: %v", err)
			continue
		}
		c.handleEvent(ctx, event)
		if onChange != nil {
			onChange(event)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, event notify.Event) {
	resource, ok := kindResources[event.Kind]
	if !ok {
		// user_updated and future kinds have no collection; the callback
		// still sees them.
		return
	}
	for _, col := range c.collections() {
		if col.path() == "/api/"+resource {
			col.Invalidate()
			go col.Refresh(ctx)
			return
		}
	}
}

func (c *Client) invalidateAll() {
	for _, col := range c.collections() {
		col.Invalidate()
	}
}
