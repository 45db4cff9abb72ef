package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/youngoldiamond/lifetracker/internal/service"
)

// updateHook observes a successful update with the before and after states.
// Only tasks use one, for XP awards.
type updateHook[P service.Entity] func(c *gin.Context, before, after P)

// registerResource wires the shared CRUD route set for one resource kind.
// Kinds with a primary timestamp additionally get the range read.
func registerResource[P service.Entity](rg *gin.RouterGroup, path string, svc *service.Service[P], hook updateHook[P]) {
	rg.GET("/"+path, func(c *gin.Context) {
		items, err := svc.List(c.Request.Context(), owner(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusOK, items)
	})

	if svc.RangeQueryable() {
		rg.GET("/"+path+"/range", func(c *gin.Context) {
			start, err := parseRangeBound(c.Query("startDate"), false)
			if err != nil {
				c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
			end, err := parseRangeBound(c.Query("endDate"), true)
			if err != nil {
				c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
			items, err := svc.ListRange(c.Request.Context(), owner(c), start, end)
			if err != nil {
				fail(c, err)
				return
			}
			c.IndentedJSON(http.StatusOK, items)
		})
	}

	rg.GET("/"+path+"/:id", func(c *gin.Context) {
		item, err := svc.Get(c.Request.Context(), owner(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusOK, item)
	})

	rg.POST("/"+path, func(c *gin.Context) {
		entity := svc.NewEntity()
		if err := c.BindJSON(entity); err != nil {
			c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		created, err := svc.Create(c.Request.Context(), owner(c), entity)
		if err != nil {
			fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusCreated, created)
	})

	rg.PUT("/"+path+"/:id", func(c *gin.Context) {
		patch := svc.NewPatch()
		if err := c.BindJSON(patch); err != nil {
			c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		var before P
		if hook != nil {
			var err error
			before, err = svc.Get(c.Request.Context(), owner(c), c.Param("id"))
			if err != nil {
				fail(c, err)
				return
			}
		}

		updated, err := svc.Update(c.Request.Context(), owner(c), c.Param("id"), patch)
		if err != nil {
			fail(c, err)
			return
		}
		if hook != nil {
			hook(c, before, updated)
		}
		c.IndentedJSON(http.StatusOK, updated)
	})

	rg.DELETE("/"+path+"/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), owner(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusOK, gin.H{"message": svc.Kind() + " deleted"})
	})
}

// parseRangeBound accepts RFC 3339 timestamps or bare YYYY-MM-DD dates. A
// bare end date means the whole day, so the bound lands at the last instant
// of it.
func parseRangeBound(value string, isEnd bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("bad date: want YYYY-MM-DD or RFC 3339")
	}
	if isEnd {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

// fail maps service and store errors onto the status taxonomy: 400
// validation, 401 wrong owner, 404 gone, 500 everything else.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.IndentedJSON(http.StatusUnauthorized, gin.H{"message": "not the owner"})
	case errors.Is(err, service.ErrNotFound):
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": err.Error()})
	default:
		glog.Errorf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "operation failed"})
	}
}
