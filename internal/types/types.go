package types

import (
	"fmt"
	"time"
)

// Meta is the part of every resource the server owns. ID and Owner are
// assigned at creation and never change; timestamps are set by the store on
// write.
type Meta struct {
	ID        string    `json:"id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (m *Meta) GetMeta() *Meta { return m }

// Task statuses. All status transitions are client-initiated.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
	StatusBacklog    = "backlog"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBacklog:
		return true
	}
	return false
}

type Subtask struct {
	Title string `json:"title" bson:"title"`
	Done  bool   `json:"done" bson:"done"`
}

type Task struct {
	Meta        `bson:",inline"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Status      string     `json:"status" bson:"status"`
	Priority    int        `json:"priority" bson:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	// Project is a weak reference. Deleting a project leaves this id dangling.
	Project  string    `json:"project,omitempty" bson:"project,omitempty"`
	Subtasks []Subtask `json:"subtasks" bson:"subtasks"`
	XP       int       `json:"xp" bson:"xp"`
}

// Habit history is keyed by UTC-normalized YYYY-MM-DD day keys. This is a
// hard contract: keys in any other form are rejected on write.
type Habit struct {
	Meta        `bson:",inline"`
	Name        string          `json:"name" bson:"name"`
	Description string          `json:"description,omitempty" bson:"description,omitempty"`
	History     map[string]bool `json:"history" bson:"history"`
	TargetDays  int             `json:"targetDays" bson:"targetDays"`
}

type DailyAction struct {
	ID    string `json:"id" bson:"id"`
	Title string `json:"title" bson:"title"`
}

// Challenge history maps UTC YYYY-MM-DD day keys to the daily-action ids
// completed that day.
type Challenge struct {
	Meta         `bson:",inline"`
	Name         string              `json:"name" bson:"name"`
	Description  string              `json:"description,omitempty" bson:"description,omitempty"`
	StartDate    *time.Time          `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate      *time.Time          `json:"endDate,omitempty" bson:"endDate,omitempty"`
	DailyActions []DailyAction       `json:"dailyActions" bson:"dailyActions"`
	History      map[string][]string `json:"history" bson:"history"`
}

type FocusSession struct {
	Meta      `bson:",inline"`
	Label     string    `json:"label,omitempty" bson:"label,omitempty"`
	StartTime time.Time `json:"startTime" bson:"startTime"`
	Minutes   int       `json:"minutes" bson:"minutes"`
	Completed bool      `json:"completed" bson:"completed"`
}

type Project struct {
	Meta        `bson:",inline"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Color       string `json:"color,omitempty" bson:"color,omitempty"`
	Status      string `json:"status,omitempty" bson:"status,omitempty"`
}

type Event struct {
	Meta      `bson:",inline"`
	Title     string     `json:"title" bson:"title"`
	StartTime time.Time  `json:"startTime" bson:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty" bson:"endTime,omitempty"`
	AllDay    bool       `json:"allDay" bson:"allDay"`
	Location  string     `json:"location,omitempty" bson:"location,omitempty"`
	Notes     string     `json:"notes,omitempty" bson:"notes,omitempty"`
}

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	XP           int       `json:"xp" bson:"xp"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Patch types carry one pointer per mutable field; nil means leave the field
// unchanged. Update is a merge, never a replace.

type TaskPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *string     `json:"status,omitempty"`
	Priority    *int        `json:"priority,omitempty"`
	DueDate     **time.Time `json:"dueDate,omitempty"`
	Project     *string     `json:"project,omitempty"`
	Subtasks    *[]Subtask  `json:"subtasks,omitempty"`
	XP          *int        `json:"xp,omitempty"`
}

func (p *TaskPatch) Apply(t *Task) error {
	if p.Status != nil && !ValidStatus(*p.Status) {
		return fmt.Errorf("invalid status %q", *p.Status)
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.Subtasks != nil {
		t.Subtasks = *p.Subtasks
	}
	if p.XP != nil {
		t.XP = *p.XP
	}
	return nil
}

type HabitPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	History     *map[string]bool `json:"history,omitempty"`
	TargetDays  *int             `json:"targetDays,omitempty"`
}

func (p *HabitPatch) Apply(h *Habit) error {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Description != nil {
		h.Description = *p.Description
	}
	if p.History != nil {
		h.History = *p.History
	}
	if p.TargetDays != nil {
		h.TargetDays = *p.TargetDays
	}
	return nil
}

type ChallengePatch struct {
	Name         *string              `json:"name,omitempty"`
	Description  *string              `json:"description,omitempty"`
	StartDate    **time.Time          `json:"startDate,omitempty"`
	EndDate      **time.Time          `json:"endDate,omitempty"`
	DailyActions *[]DailyAction       `json:"dailyActions,omitempty"`
	History      *map[string][]string `json:"history,omitempty"`
}

func (p *ChallengePatch) Apply(c *Challenge) error {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.StartDate != nil {
		c.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		c.EndDate = *p.EndDate
	}
	if p.DailyActions != nil {
		c.DailyActions = *p.DailyActions
	}
	if p.History != nil {
		c.History = *p.History
	}
	return nil
}

type FocusSessionPatch struct {
	Label     *string    `json:"label,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Minutes   *int       `json:"minutes,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
}

func (p *FocusSessionPatch) Apply(s *FocusSession) error {
	if p.Label != nil {
		s.Label = *p.Label
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.Minutes != nil {
		s.Minutes = *p.Minutes
	}
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	return nil
}

type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (p *ProjectPatch) Apply(pr *Project) error {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Color != nil {
		pr.Color = *p.Color
	}
	if p.Status != nil {
		pr.Status = *p.Status
	}
	return nil
}

type EventPatch struct {
	Title     *string     `json:"title,omitempty"`
	StartTime *time.Time  `json:"startTime,omitempty"`
	EndTime   **time.Time `json:"endTime,omitempty"`
	AllDay    *bool       `json:"allDay,omitempty"`
	Location  *string     `json:"location,omitempty"`
	Notes     *string     `json:"notes,omitempty"`
}

func (p *EventPatch) Apply(e *Event) error {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	return nil
}
