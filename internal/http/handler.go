package http

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parkwatch-service/internal/broadcast"
	"parkwatch-service/internal/config"
	"parkwatch-service/internal/domain/violation"
	"parkwatch-service/internal/evidence"
	"parkwatch-service/internal/service"
	"parkwatch-service/internal/supervisor"
	"parkwatch-service/internal/zones"
)

type Handler struct {
	violationService *service.ViolationService
	hub              *broadcast.Hub
	supervisor       *supervisor.Supervisor
	config           *config.Config
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

func NewHandler(
	violationService *service.ViolationService,
	hub *broadcast.Hub,
	sup *supervisor.Supervisor,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		violationService: violationService,
		hub:              hub,
		supervisor:       sup,
		config:           cfg,
		log:              log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/violations", h.createViolation)
		public.GET("/violations", h.listViolations)
		public.GET("/zones", h.getZones)
		public.GET("/engine/status", h.engineStatus)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/violations", h.cleanupViolations)
		protected.PUT("/zones", h.updateZones)
		protected.POST("/engine/start", h.engineStart)
		protected.POST("/engine/stop", h.engineStop)
		protected.POST("/engine/restart", h.engineRestart)
	}

	r.GET("/ws", h.serveWS)
	r.Static("/output", h.config.Dashboard.EvidenceDir)
}

func (h *Handler) createViolation(c *gin.Context) {
	var payload violation.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	result, err := h.violationService.ProcessIncomingEvent(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Msg("failed to process violation event")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "ok",
		"event":     result.Event,
		"event_id":  result.EventID,
		"track_id":  result.TrackID,
		"zone_name": result.ZoneName,
		"broadcast": result.Broadcast,
	})
}

func (h *Handler) listViolations(c *gin.Context) {
	var zoneName *string
	if z := strings.TrimSpace(c.Query("zone")); z != "" {
		zoneName = &z
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	events, err := h.violationService.FindViolations(c.Request.Context(), zoneName, from, to, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Msg("failed to find violations")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

// cleanupViolations drops violations older than the given number of days
// and sweeps the matching evidence files from disk.
func (h *Handler) cleanupViolations(c *gin.Context) {
	days, err := parseInt(c.Query("days"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("days must be a positive integer"))
		return
	}

	deleted, err := h.violationService.CleanupOldViolations(c.Request.Context(), days)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to cleanup violations")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := evidence.Sweep(h.config.Dashboard.EvidenceDir, cutoff)
	if err != nil {
		h.log.Error().Err(err).Msg("evidence sweep incomplete")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"deleted_records": deleted,
		"removed_files":   removed,
	})
}

func (h *Handler) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}
	obs := h.hub.Attach(conn)
	h.log.Info().
		Str("observer_id", obs.ID).
		Str("remote", c.ClientIP()).
		Int("observers", h.hub.Count()).
		Msg("websocket observer connected")
}

// zoneFilePayload mirrors the on-disk zone file format.
type zoneFilePayload struct {
	ReferenceWidth  int                `json:"reference_width"`
	ReferenceHeight int                `json:"reference_height"`
	Zones           map[string][][]int `json:"zones"`
}

func (h *Handler) getZones(c *gin.Context) {
	data, err := os.ReadFile(h.config.Engine.ZoneFile)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, errorResponse("zone file not found"))
			return
		}
		h.log.Error().Err(err).Msg("failed to read zone file")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	var payload zoneFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Error().Err(err).Msg("zone file is corrupt")
		c.JSON(http.StatusInternalServerError, errorResponse("zone file is corrupt"))
		return
	}

	c.JSON(http.StatusOK, successResponse(payload))
}

func (h *Handler) updateZones(c *gin.Context) {
	var payload zoneFilePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := validateZonePayload(payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	// Write via rename so the engine never reads a half-written file.
	path := h.config.Engine.ZoneFile
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.log.Error().Err(err).Msg("failed to create zone file directory")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		h.log.Error().Err(err).Msg("failed to write zone file")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		h.log.Error().Err(err).Msg("failed to replace zone file")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	h.log.Info().Int("zones", len(payload.Zones)).Msg("zone file updated, restarting engine")

	restarted := true
	if err := h.supervisor.Restart(); err != nil {
		h.log.Error().Err(err).Msg("failed to restart engine after zone update")
		restarted = false
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"zones":            len(payload.Zones),
		"engine_restarted": restarted,
	})
}

func validateZonePayload(p zoneFilePayload) error {
	if p.ReferenceWidth <= 0 || p.ReferenceHeight <= 0 {
		return errors.New("reference_width and reference_height must be positive")
	}
	if len(p.Zones) == 0 {
		return errors.New("at least one zone is required")
	}

	polys := make(map[string][]image.Point, len(p.Zones))
	for name, poly := range p.Zones {
		pts := make([]image.Point, 0, len(poly))
		for _, pair := range poly {
			if len(pair) != 2 {
				return errors.New("zone points must be [x, y] pairs")
			}
			pts = append(pts, image.Pt(pair[0], pair[1]))
		}
		polys[name] = pts
	}

	m, err := zones.NewMap(p.ReferenceWidth, p.ReferenceHeight, polys)
	if err != nil {
		return err
	}
	m.Close()
	return nil
}

func (h *Handler) engineStart(c *gin.Context) {
	if err := h.supervisor.Start(); err != nil {
		h.log.Error().Err(err).Msg("failed to start engine")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(h.supervisor.Status()))
}

func (h *Handler) engineStop(c *gin.Context) {
	if err := h.supervisor.Stop(); err != nil {
		h.log.Error().Err(err).Msg("failed to stop engine")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(h.supervisor.Status()))
}

func (h *Handler) engineRestart(c *gin.Context) {
	if err := h.supervisor.Restart(); err != nil {
		h.log.Error().Err(err).Msg("failed to restart engine")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(h.supervisor.Status()))
}

func (h *Handler) engineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.supervisor.Status()))
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
