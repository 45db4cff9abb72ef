// Package client consumes the lifetracker API. It keeps one cache per
// resource kind, mutates it optimistically, and treats change notifications
// from the realtime channel as the authoritative signal to invalidate and
// refetch. Refetches are pure reads, safe to repeat any number of times, so
// out-of-order notification arrival is harmless.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/youngoldiamond/lifetracker/internal/types"
)

// APIError is a non-2xx response, carrying the server's message envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	base string
	http *http.Client

	mu    sync.Mutex
	token string

	tasks      *Collection[types.Task]
	habits     *Collection[types.Habit]
	challenges *Collection[types.Challenge]
	focus      *Collection[types.FocusSession]
	projects   *Collection[types.Project]
	events     *Collection[types.Event]
}

// New builds a client for the server at base, e.g. "http://localhost:8080".
func New(base string) *Client {
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	c.tasks = newCollection[types.Task](c, "tasks")
	c.habits = newCollection[types.Habit](c, "habits")
	c.challenges = newCollection[types.Challenge](c, "challenges")
	c.focus = newCollection[types.FocusSession](c, "focus-sessions")
	c.projects = newCollection[types.Project](c, "projects")
	c.events = newCollection[types.Event](c, "events")
	return c
}

func (c *Client) Tasks() *Collection[types.Task]                 { return c.tasks }
func (c *Client) Habits() *Collection[types.Habit]               { return c.habits }
func (c *Client) Challenges() *Collection[types.Challenge]       { return c.challenges }
func (c *Client) FocusSessions() *Collection[types.FocusSession] { return c.focus }
func (c *Client) Projects() *Collection[types.Project]           { return c.projects }
func (c *Client) Events() *Collection[types.Event]               { return c.events }

func (c *Client) collections() []invalidator {
	return []invalidator{c.tasks, c.habits, c.challenges, c.focus, c.projects, c.events}
}

// SetToken installs a previously issued token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) (*types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodPost, "/api/users",
		types.Credentials{Username: username, Password: password}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates and keeps the issued token for all later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/users/login",
		types.Credentials{Username: username, Password: password}, &out)
	if err != nil {
		return err
	}
	c.SetToken(out.Token)
	return nil
}

// Me returns the authenticated user's profile with level info.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type Profile struct {
	User          types.User `json:"user"`
	Level         int        `json:"level"`
	LevelProgress float64    `json:"levelProgress"`
}

// HabitStats is the server-computed history summary for one habit.
type HabitStats struct {
	Streak        int      `json:"streak"`
	CompletedDays int      `json:"completedDays"`
	TargetDays    int      `json:"targetDays"`
	Days          []string `json:"days"`
}

func (c *Client) HabitStats(ctx context.Context, id string) (*HabitStats, error) {
	var stats HabitStats
	if err := c.do(ctx, http.MethodGet, "/api/habits/"+id+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ChallengeStats is the server-computed progress for one challenge.
type ChallengeStats struct {
	Progress float64  `json:"progress"`
	Days     []string `json:"days"`
}

func (c *Client) ChallengeStats(ctx context.Context, id string) (*ChallengeStats, error) {
	var stats ChallengeStats
	if err := c.do(ctx, http.MethodGet, "/api/challenges/"+id+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil {
			apiErr.Message = envelope.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
