package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailtriage/internal/engine"
	"mailtriage/internal/lock"
	"mailtriage/internal/model"
	"mailtriage/internal/store"
	"mailtriage/internal/trigger"
	"mailtriage/pkg/outbox"
)

// StatusHandler serves GET /status: the latestRunStats snapshot, the
// current lock holder (if any), and the installed triggers, for
// operator visibility.
type StatusHandler struct {
	kv       *store.KVStore
	locks    *lock.Manager
	history  *store.RunHistory
	triggers *trigger.Service
}

func NewStatusHandler(kv *store.KVStore, locks *lock.Manager, history *store.RunHistory, triggers *trigger.Service) *StatusHandler {
	return &StatusHandler{kv: kv, locks: locks, history: history, triggers: triggers}
}

func (h *StatusHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := h.kv.GetOrEmpty(ctx, "latestRunStats")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read latest run stats"})
		return
	}
	var latest model.RunStats
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &latest); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode latest run stats"})
			return
		}
	}

	held, err := h.locks.Current(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read lock state"})
		return
	}

	recent, err := h.history.Recent(ctx, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run history"})
		return
	}

	installed, err := h.triggers.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list triggers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"latestRun":  latest,
		"lock":       held,
		"recentRuns": recent,
		"triggers":   installed,
	})
}

// ScanHandler serves POST /scans: a manual trigger for the active
// engine, the backend half of a "scan emails now" button.
type ScanHandler struct {
	engine *engine.Engine
}

func NewScanHandler(e *engine.Engine) *ScanHandler {
	return &ScanHandler{engine: e}
}

func (h *ScanHandler) StartScan(c *gin.Context) {
	var req struct {
		TimeRange string `json:"timeRange" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeRange is required, e.g. \"7days\""})
		return
	}

	if err := h.engine.Start(c.Request.Context(), req.TimeRange); err != nil {
		var held engine.ErrLockHeld
		if errors.As(err, &held) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "heldBy": held.HeldKind})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "timeRange": req.TimeRange})
}

// ReplayHandler serves the outbox replay endpoints for notification
// jobs the dispatcher gave up on.
type ReplayHandler struct {
	replay *outbox.ReplayService
}

func NewReplayHandler(replay *outbox.ReplayService) *ReplayHandler {
	return &ReplayHandler{replay: replay}
}

func (h *ReplayHandler) ReplayFailed(c *gin.Context) {
	n, err := h.replay.ReplayFailedEvents(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": n})
}

// HealthCheck serves GET /health: a liveness probe only, no dependency
// checks — dependency failures surface through /status instead.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
