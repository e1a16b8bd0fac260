package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// EventHandler exposes read-only endpoints for the event log.
type EventHandler struct {
	log    eventlog.Log
	logger *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(log eventlog.Log, logger *zap.Logger) *EventHandler {
	return &EventHandler{log: log, logger: logger}
}

// Register mounts the event routes on the given router group.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/events")
	{
		ev.GET("", h.List)
		ev.GET("/verify", h.Verify)
		ev.GET("/:seq", h.Get)
	}
}

// List handles GET /events?from=&limit=. from defaults to 1, the first
// record after genesis.
func (h *EventHandler) List(c *gin.Context) {
	from, err := queryInt(c, "from", 1)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit = min(max(limit, 1), maxPageSize)

	ctx := c.Request.Context()
	n, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("event log Len", zap.Error(err))
		abort(c, err)
		return
	}

	page := wire.EventPage{Events: []wire.Event{}}
	seq := from
	for ; seq < n && len(page.Events) < limit; seq++ {
		r, err := h.log.Get(ctx, seq)
		if err != nil {
			h.logger.Error("event log Get", zap.Int("seq", seq), zap.Error(err))
			abort(c, err)
			return
		}
		page.Events = append(page.Events, event(r))
	}
	if seq < n {
		page.Next = seq
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /events/:seq.
func (h *EventHandler) Get(c *gin.Context) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		badRequest(c, errors.New("seq must be a non-negative integer"))
		return
	}
	r, err := h.log.Get(c.Request.Context(), seq)
	if errors.Is(err, eventlog.ErrNotFound) {
		abort(c, &applier.Error{Code: applier.CodeNotFound, Err: err})
		return
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, event(r))
}

// Verify handles GET /events/verify. A broken chain is reported in the body
// with status 200.
func (h *EventHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	var out wire.Verification

	if err := h.log.Verify(ctx); err != nil {
		h.logger.Warn("event log integrity check failed", zap.Error(err))
		out.Error = err.Error()
	} else {
		out.Valid = true
	}

	var err error
	if out.Records, err = h.log.Len(ctx); err != nil {
		abort(c, err)
		return
	}
	if out.Root, err = h.log.Root(ctx); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func event(r *eventlog.Record) wire.Event {
	return wire.Event{
		Sequence: r.Sequence,
		Time:     r.Time,
		Kind:     r.Kind,
		Subject:  r.Subject,
		Actor:    r.Actor,
		Payload:  r.Payload,
		DataHash: r.DataHash,
		PrevHash: r.PrevHash,
		Hash:     r.Hash,
	}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
