// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cocreateceo/tmux-builder-sub002/lib/dispatch"
	"github.com/cocreateceo/tmux-builder-sub002/lib/orchestrator"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/pushchannel"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/sessiondef"
	"github.com/cocreateceo/tmux-builder-sub002/lib/version"
)

// Controller is what the API drives. *orchestrator.Orchestrator
// implements it.
type Controller interface {
	pushchannel.Source
	Launch(request orchestrator.StartRequest) (session.Session, error)
	Get(id string) (session.Session, error)
	List() []session.Session
	Dispatch(ctx context.Context, id, task string) (dispatch.Receipt, error)
	Complete(id string) (session.Session, error)
	Kill(id string) (session.Session, error)
	Events(id string, limit int) ([]progress.Event, error)
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// NewRouter returns the API handler.
func NewRouter(controller Controller, stream *pushchannel.Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	api := &api{controller: controller, stream: stream, logger: logger}
	router.GET("/healthz", api.health)

	v1 := router.Group("/v1/sessions")
	v1.POST("", api.start)
	v1.GET("", api.list)
	v1.GET("/:id", api.get)
	v1.DELETE("/:id", api.kill)
	v1.POST("/:id/dispatch", api.dispatch)
	v1.POST("/:id/complete", api.complete)
	v1.GET("/:id/events", api.events)
	v1.GET("/:id/stream", api.streamEvents)
	return router
}

type api struct {
	controller Controller
	stream     *pushchannel.Handler
	logger     *slog.Logger
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: len(a.controller.List()),
		Version:  version.Info(),
	})
}

func (a *api) start(c *gin.Context) {
	var template sessiondef.Template
	if err := c.ShouldBindJSON(&template); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if issues := sessiondef.Validate(&template); len(issues) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: strings.Join(issues, "; ")})
		return
	}

	created, err := a.controller.Launch(orchestrator.StartRequest{
		Label:            template.Label,
		WorkingDirectory: template.WorkingDirectory,
		InitialTask:      template.InitialTask,
		Environment:      template.Environment,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Location", "/v1/sessions/"+created.ID)
	c.JSON(http.StatusAccepted, created)
}

func (a *api) list(c *gin.Context) {
	sessions := a.controller.List()
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, ListResponse{Sessions: sessions})
}

func (a *api) get(c *gin.Context) {
	s, err := a.controller.Get(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) dispatch(c *gin.Context) {
	var request DispatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	id := c.Param("id")
	receipt, err := a.controller.Dispatch(c.Request.Context(), id, request.Task)
	if err != nil {
		a.fail(c, err)
		return
	}
	s, err := a.controller.Get(id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DispatchResponse{
		Session:      s,
		Attempts:     receipt.Attempts,
		PromptDigest: receipt.Prompt.Digest,
	})
}

func (a *api) complete(c *gin.Context) {
	s, err := a.controller.Complete(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) kill(c *gin.Context) {
	s, err := a.controller.Kill(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) events(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxEventLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and " + strconv.Itoa(maxEventLimit)})
			return
		}
		limit = parsed
	}
	events, err := a.controller.Events(c.Param("id"), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	if events == nil {
		events = []progress.Event{}
	}
	c.JSON(http.StatusOK, EventsResponse{Events: events})
}

func (a *api) streamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.controller.Get(id); err != nil {
		a.fail(c, err)
		return
	}
	a.stream.Serve(c.Writer, c.Request, id)
}

func (a *api) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("request failed", "path", c.FullPath(), "session_id", c.Param("id"), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
