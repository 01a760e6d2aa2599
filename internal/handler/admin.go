package handler

import (
	"net/http"
	"time"

	"github.com/edgewatch/edgewatch/internal/config"
	"github.com/edgewatch/edgewatch/internal/execution"
	"github.com/edgewatch/edgewatch/internal/middleware"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/monitor"
	"github.com/edgewatch/edgewatch/internal/pkg/apperrors"
	"github.com/edgewatch/edgewatch/internal/repository"
	"github.com/edgewatch/edgewatch/internal/risk"
	"github.com/edgewatch/edgewatch/internal/shard"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler exposes the operational surface: status, shard health,
// exposures, kill switch control, event registration.
type AdminHandler struct {
	cfg        *config.Config
	supervisor *shard.Supervisor
	manager    *monitor.Manager
	killSwitch execution.KillSwitch
	ledger     *risk.Ledger
	events     *repository.EventStore
	startedAt  time.Time
}

func NewAdminHandler(cfg *config.Config, supervisor *shard.Supervisor, manager *monitor.Manager, killSwitch execution.KillSwitch, ledger *risk.Ledger, events *repository.EventStore) *AdminHandler {
	return &AdminHandler{
		cfg:        cfg,
		supervisor: supervisor,
		manager:    manager,
		killSwitch: killSwitch,
		ledger:     ledger,
		events:     events,
		startedAt:  time.Now(),
	}
}

// Router builds the gin engine with middleware and routes.
func (h *AdminHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/healthz", h.Health)
	if h.cfg.Metrics.Enabled {
		r.GET(h.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	api.GET("/status", h.Status)
	api.GET("/shards", h.Shards)
	api.GET("/monitors", h.Monitors)
	api.GET("/exposures", h.Exposures)

	admin := api.Group("", middleware.AdminMiddleware(h.cfg.Server.AdminKey))
	admin.POST("/killswitch", h.SetKillSwitch)
	admin.POST("/events", h.RegisterEvent)

	return r
}

func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, model.StatusResponse{
		Mode:          h.cfg.Execution.Mode,
		KillSwitch:    h.killSwitch.Engaged(c.Request.Context()),
		TrackedEvents: h.supervisor.TrackedEvents(),
		AliveShards:   h.supervisor.AliveShards(),
		StartedAt:     h.startedAt,
	})
}

func (h *AdminHandler) Shards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"shards": h.supervisor.Shards()})
}

func (h *AdminHandler) Monitors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"monitors": h.manager.Views()})
}

func (h *AdminHandler) Exposures(c *gin.Context) {
	exposures := h.ledger.EventExposures()
	out := make([]model.ExposureView, 0, len(exposures))
	for eventID, exposure := range exposures {
		out = append(out, model.ExposureView{
			EventID:  eventID,
			Exposure: exposure.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{"exposures": out})
}

func (h *AdminHandler) SetKillSwitch(c *gin.Context) {
	var req model.KillSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest("malformed kill switch request"))
		return
	}

	ctx := c.Request.Context()
	if req.Engaged {
		reason := req.Reason
		if reason == "" {
			reason = "engaged via admin api"
		}
		if err := h.killSwitch.Engage(ctx, reason); err != nil {
			c.Error(apperrors.New(apperrors.ErrInternal, "kill switch engage failed", err))
			return
		}
	} else {
		if err := h.killSwitch.Release(ctx); err != nil {
			c.Error(apperrors.New(apperrors.ErrInternal, "kill switch release failed", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"engaged": req.Engaged})
}

type registerEventRequest struct {
	ID           string    `json:"id" binding:"required"`
	MarketType   string    `json:"market_type" binding:"required"`
	HomeEntity   string    `json:"home_entity" binding:"required"`
	AwayEntity   string    `json:"away_entity"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	ResolutionAt time.Time `json:"resolution_at"`
}

func (h *AdminHandler) RegisterEvent(c *gin.Context) {
	var req registerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest("malformed event registration"))
		return
	}

	mt := model.MarketType(req.MarketType)
	switch mt {
	case model.MarketSports, model.MarketPriceTarget, model.MarketIndicator, model.MarketElection:
	default:
		c.Error(apperrors.NewInvalidRequest("unknown market type " + req.MarketType))
		return
	}

	h.events.Put(&model.Event{
		ID:           req.ID,
		MarketType:   mt,
		HomeEntity:   req.HomeEntity,
		AwayEntity:   req.AwayEntity,
		ScheduledAt:  req.ScheduledAt,
		ResolutionAt: req.ResolutionAt,
		Status:       model.StatusScheduled,
	})
	h.supervisor.Track(c.Request.Context(), req.ID)

	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}
