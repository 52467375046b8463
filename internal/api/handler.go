package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rwandadisasteralert/alert-engine/internal/feed"
	"github.com/rwandadisasteralert/alert-engine/internal/geo"
	"github.com/rwandadisasteralert/alert-engine/internal/lifecycle"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
	"github.com/rwandadisasteralert/alert-engine/internal/stats"
)

type Handler struct {
	alerts      repository.AlertRepository
	subscribers repository.SubscriberRepository
	deliveries  repository.DeliveryRepository
	feedStore   repository.FeedRepository
	lifecycle   *lifecycle.Lifecycle
	stats       *stats.Aggregator
	broadcaster *feed.Broadcaster
}

func NewHandler(
	alerts repository.AlertRepository,
	subscribers repository.SubscriberRepository,
	deliveries repository.DeliveryRepository,
	feedStore repository.FeedRepository,
	lc *lifecycle.Lifecycle,
	agg *stats.Aggregator,
	broadcaster *feed.Broadcaster,
) *Handler {
	return &Handler{
		alerts:      alerts,
		subscribers: subscribers,
		deliveries:  deliveries,
		feedStore:   feedStore,
		lifecycle:   lc,
		stats:       agg,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	r.POST("/api/alerts", h.createAlert)
	r.GET("/api/alerts/:id", h.getAlert)
	r.POST("/api/alerts/:id/activate", h.activateAlert)
	r.POST("/api/alerts/:id/cancel", h.cancelAlert)
	r.POST("/api/alerts/:id/resend", h.resendAlert)
	r.GET("/api/alerts/:id/deliveries", h.listDeliveries)
	r.GET("/api/alerts/:id/stats", h.alertStats)

	r.POST("/api/deliveries/:id/read", h.markRead)

	r.POST("/api/subscribers", h.upsertSubscriber)

	r.GET("/api/feed", h.listFeed)
	r.GET("/api/feed/stream", h.streamFeed)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type latLngRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type createAlertRequest struct {
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	Title       string            `json:"title" binding:"required"`
	Message     string            `json:"message" binding:"required"`
	Localized   map[string]string `json:"localized"`
	Center      *latLngRequest    `json:"center"`
	RadiusKm    float64           `json:"radius_km"`
	Polygon     []latLngRequest   `json:"polygon"`
	LocationIDs []string          `json:"location_ids"`
	Channels    []string          `json:"channels"`
	ExpiresAt   *time.Time        `json:"expires_at"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := models.Severity(req.Severity)
	if req.Severity == "" {
		severity = models.SeverityInfo
	}
	if !severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity: " + req.Severity})
		return
	}

	channels := make([]models.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch := models.Channel(raw)
		if !ch.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel: " + raw})
			return
		}
		channels = append(channels, ch)
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      models.DisasterType(req.Type),
		Severity:  severity,
		Status:    models.AlertStatusDraft,
		Title:     req.Title,
		Message:   req.Message,
		Localized: req.Localized,
		Target: models.Target{
			RadiusKm:    req.RadiusKm,
			LocationIDs: req.LocationIDs,
		},
		Channels:  channels,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now(),
	}
	if alert.Type == "" {
		alert.Type = models.DisasterTypeOther
	}
	if req.Center != nil {
		alert.Target.Center = &models.LatLng{Latitude: req.Center.Lat, Longitude: req.Center.Lng}
	}
	for _, v := range req.Polygon {
		alert.Target.Polygon = append(alert.Target.Polygon, models.LatLng{Latitude: v.Lat, Longitude: v.Lng})
	}

	if err := h.alerts.CreateAlert(c.Request.Context(), alert); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, toAlertResponse(alert))
}

func (h *Handler) getAlert(c *gin.Context) {
	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alert"})
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

func (h *Handler) activateAlert(c *gin.Context) {
	summary, err := h.lifecycle.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.transitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_id": c.Param("id"),
		"status":   models.AlertStatusActive,
		"summary":  summary,
	})
}

func (h *Handler) cancelAlert(c *gin.Context) {
	if err := h.lifecycle.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.transitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_id": c.Param("id"),
		"status":   models.AlertStatusCancelled,
	})
}

func (h *Handler) resendAlert(c *gin.Context) {
	queued, summary, err := h.lifecycle.ResendFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.transitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_id": c.Param("id"),
		"queued":   queued,
		"summary":  summary,
	})
}

func (h *Handler) transitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case lifecycle.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) listDeliveries(c *gin.Context) {
	filter := repository.DeliveryFilter{
		Limit: 50,
	}

	if raw := c.Query("channel"); raw != "" {
		ch := models.Channel(raw)
		if !ch.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel: " + raw})
			return
		}
		filter.Channel = &ch
	}
	if raw := c.Query("status"); raw != "" {
		st := models.DeliveryStatus(raw)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + raw})
			return
		}
		filter.Status = &st
	}
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &t
		}
	}
	if raw := c.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &t
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	records, err := h.deliveries.ListByAlert(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch deliveries"})
		return
	}

	out := make([]gin.H, 0, len(records))
	for i := range records {
		out = append(out, toDeliveryResponse(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_id":   c.Param("id"),
		"deliveries": out,
		"count":      len(out),
	})
}

func (h *Handler) alertStats(c *gin.Context) {
	s, err := h.stats.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) markRead(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.deliveries.MarkRead(c.Request.Context(), id, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark delivery read"})
		return
	}
	if !ok {
		rec, err := h.deliveries.GetDelivery(c.Request.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark delivery read"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "can only mark sent or delivered notifications as read, delivery is " + string(rec.Status),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.DeliveryStatusRead})
}

type subscriberRequest struct {
	ID          string         `json:"id"`
	Location    *latLngRequest `json:"location"`
	LocationIDs []string       `json:"location_ids"`
	Phone       string         `json:"phone"`
	PushToken   string         `json:"push_token"`
	Email       string         `json:"email"`
	Language    string         `json:"language"`
}

func (h *Handler) upsertSubscriber(c *gin.Context) {
	var req subscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &models.Subscriber{
		ID:          req.ID,
		LocationIDs: req.LocationIDs,
		Phone:       req.Phone,
		PushToken:   req.PushToken,
		Email:       req.Email,
		Language:    req.Language,
		CreatedAt:   time.Now(),
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Language == "" {
		sub.Language = "rw"
	}
	if req.Location != nil {
		sub.Location = &models.LatLng{Latitude: req.Location.Lat, Longitude: req.Location.Lng}
	}

	if err := h.subscribers.UpsertSubscriber(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscriber"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sub.ID})
}

func (h *Handler) listFeed(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	entries, err := h.feedStore.ListFeed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch feed"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"id":           e.ID,
			"alert_id":     e.AlertID,
			"title":        e.Title,
			"message":      e.Message,
			"severity":     e.Severity,
			"type":         e.Type,
			"published_at": e.PublishedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// streamFeed pushes newly published alerts to the client as server-sent
// events until the client disconnects.
func (h *Handler) streamFeed(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Stream(func(w io.Writer) bool {
		select {
		case alert, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", toAlertResponse(alert))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func toAlertResponse(a *models.Alert) gin.H {
	resp := gin.H{
		"id":         a.ID,
		"type":       a.Type,
		"severity":   a.Severity,
		"status":     a.Status,
		"title":      a.Title,
		"message":    a.Message,
		"channels":   a.Channels,
		"created_at": a.CreatedAt,
	}
	if len(a.Localized) > 0 {
		resp["localized"] = a.Localized
	}
	if a.Target.Center != nil {
		resp["center"] = gin.H{"lat": a.Target.Center.Latitude, "lng": a.Target.Center.Longitude}
		resp["radius_km"] = a.Target.RadiusKm
		// Display-only density estimate; recipient resolution never uses it.
		resp["estimated_population"] = geo.EstimatePopulation(a.Target.RadiusKm)
	}
	if len(a.Target.Polygon) > 0 {
		polygon := make([]gin.H, 0, len(a.Target.Polygon))
		for _, v := range a.Target.Polygon {
			polygon = append(polygon, gin.H{"lat": v.Latitude, "lng": v.Longitude})
		}
		resp["polygon"] = polygon
	}
	if len(a.Target.LocationIDs) > 0 {
		resp["location_ids"] = a.Target.LocationIDs
	}
	if a.ExpiresAt != nil {
		resp["expires_at"] = a.ExpiresAt
	}
	if a.IssuedAt != nil {
		resp["issued_at"] = a.IssuedAt
	}
	return resp
}

func toDeliveryResponse(r *models.DeliveryRecord) gin.H {
	status := r.Status
	if status == models.DeliveryStatusSending {
		// The claim marker is internal; dashboards see it as pending.
		status = models.DeliveryStatusPending
	}
	resp := gin.H{
		"id":            r.ID,
		"alert_id":      r.AlertID,
		"subscriber_id": r.SubscriberID,
		"channel":       r.Channel,
		"status":        status,
		"attempt_count": r.AttemptCount,
		"created_at":    r.CreatedAt,
	}
	if r.ErrorMessage != "" {
		resp["error_message"] = r.ErrorMessage
	}
	if r.SentAt != nil {
		resp["sent_at"] = r.SentAt
	}
	if r.DeliveredAt != nil {
		resp["delivered_at"] = r.DeliveredAt
	}
	if r.ReadAt != nil {
		resp["read_at"] = r.ReadAt
	}
	return resp
}
