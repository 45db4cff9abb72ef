// Package api is the REST surface. One route set per resource kind, plus
// registration/login and the realtime channel. Handlers stay thin: bind,
// call the service, map the error.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/youngoldiamond/lifetracker/internal/auth"
	"github.com/youngoldiamond/lifetracker/internal/gamify"
	"github.com/youngoldiamond/lifetracker/internal/notify"
	"github.com/youngoldiamond/lifetracker/internal/service"
	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

// XP a completed task is worth when it doesn't carry its own reward.
const defaultTaskXP = 10

type Server struct {
	auth *auth.Auth
	hub  *notify.Hub

	tasks      *service.Service[*types.Task]
	habits     *service.Service[*types.Habit]
	challenges *service.Service[*types.Challenge]
	focus      *service.Service[*types.FocusSession]
	projects   *service.Service[*types.Project]
	events     *service.Service[*types.Event]
}

func NewServer(st store.Store, a *auth.Auth, hub *notify.Hub) *Server {
	return &Server{
		auth:       a,
		hub:        hub,
		tasks:      service.Tasks(st, hub),
		habits:     service.Habits(st, hub),
		challenges: service.Challenges(st, hub),
		focus:      service.FocusSessions(st, hub),
		projects:   service.Projects(st, hub),
		events:     service.Events(st, hub),
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	api.POST("/users", s.register)
	api.POST("/users/login", s.login)

	authed := api.Group("", s.authRequired)
	authed.GET("/users/me", s.me)

	registerResource(authed, "tasks", s.tasks, s.awardTaskXP)
	registerResource(authed, "habits", s.habits, nil)
	authed.GET("/habits/:id/stats", s.habitStats)
	registerResource(authed, "challenges", s.challenges, nil)
	authed.GET("/challenges/:id/stats", s.challengeStats)
	registerResource(authed, "focus-sessions", s.focus, nil)
	registerResource(authed, "projects", s.projects, nil)
	registerResource(authed, "events", s.events, nil)

	router.GET("/ws", s.authRequired, s.serveWS)
	return router
}

// authRequired resolves the bearer token to a user identity. The websocket
// route reuses it; browsers cannot set headers on websocket dials, so a
// token query parameter is accepted there too.
func (s *Server) authRequired(c *gin.Context) {
	token := c.GetHeader("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		token = c.Query("token")
	}

	claims, err := s.auth.CheckToken(token)
	if err != nil {
		c.IndentedJSON(http.StatusUnauthorized, gin.H{"message": "invalid or missing token"})
		c.Abort()
		return
	}

	c.Set("userID", claims.Subject)
	c.Set("username", claims.Username)
	c.Next()
}

func owner(c *gin.Context) string    { return c.GetString("userID") }
func username(c *gin.Context) string { return c.GetString("username") }

func (s *Server) register(c *gin.Context) {
	var credentials types.Credentials
	if err := c.BindJSON(&credentials); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := s.auth.Register(c.Request.Context(), credentials)
	if errors.Is(err, auth.ErrUsernameTaken) || errors.Is(err, auth.ErrInvalidCredentials) {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var credentials types.Credentials
	if err := c.BindJSON(&credentials); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	token, err := s.auth.Login(c.Request.Context(), credentials)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.IndentedJSON(http.StatusUnauthorized, gin.H{"message": "invalid username or password"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.auth.User(c.Request.Context(), username(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{
		"user":          user,
		"level":         gamify.Level(user.XP),
		"levelProgress": gamify.LevelProgress(user.XP),
	})
}

// habitStats reports the computed summary of one habit's history: the
// current streak, total completed days, and the completed day keys ascending.
func (s *Server) habitStats(c *gin.Context) {
	habit, err := s.habits.Get(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{
		"streak":        gamify.Streak(habit.History, time.Now()),
		"completedDays": gamify.CompletedDays(habit.History),
		"targetDays":    habit.TargetDays,
		"days":          gamify.SortedDayKeys(habit.History),
	})
}

// challengeStats reports the fraction of daily actions completed over the
// challenge window so far.
func (s *Server) challengeStats(c *gin.Context) {
	challenge, err := s.challenges.Get(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	start := challenge.CreatedAt
	if challenge.StartDate != nil {
		start = *challenge.StartDate
	}
	end := time.Now()
	if challenge.EndDate != nil && challenge.EndDate.Before(end) {
		end = *challenge.EndDate
	}

	c.IndentedJSON(http.StatusOK, gin.H{
		"progress": gamify.ChallengeProgress(challenge.History, len(challenge.DailyActions), start, end),
		"days":     gamify.SortedDayKeys(challenge.History),
	})
}

func (s *Server) serveWS(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request, owner(c))
}

// awardTaskXP grants the task's XP when a status change lands it in done.
// Re-completing after moving a task back out of done earns again; the
// original behaved the same way.
func (s *Server) awardTaskXP(c *gin.Context, before, after *types.Task) {
	if before.Status == types.StatusDone || after.Status != types.StatusDone {
		return
	}
	xp := after.XP
	if xp <= 0 {
		xp = defaultTaskXP
	}
	user, err := s.auth.AddXP(c.Request.Context(), username(c), xp)
	if err != nil {
		glog.Errorf("[api] award xp user=%s: %v", username(c), err)
		return
	}
	event, err := notify.NewEvent("user", notify.ActionUpdate, user)
	if err != nil {
		glog.Errorf("[api] %v", err)
		return
	}
	s.hub.Publish(owner(c), event)
}
