package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	apperrors "github.com/ulearning-intl/bigbluebutton-streaming/pkg/errors"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatsProvider exposes in-process controller counters.
type StatsProvider interface {
	Snapshot() domain.StreamStats
}

type StreamHandler struct {
	controller ports.StreamController
	stats      StatsProvider
}

func NewStreamHandler(controller ports.StreamController, stats StatsProvider) *StreamHandler {
	return &StreamHandler{
		controller: controller,
		stats:      stats,
	}
}

func (h *StreamHandler) SetupRoutes(router gin.IRouter) {
	bot := router.Group("/bot")
	{
		bot.POST("/start", h.StartStream)
		bot.POST("/stop", h.StopStream)
		bot.GET("/streams", h.ListStreams)
		if h.stats != nil {
			bot.GET("/stats", h.GetStats)
		}
	}
}

// flexBool accepts true/false as JSON booleans or strings, since callers
// have historically sent both.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("hidePresentation must be a boolean")
	}
	if s == "" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("hidePresentation must be a boolean")
	}
	*b = flexBool(v)
	return nil
}

type startRequest struct {
	MeetingID        string   `json:"meetingId"`
	HidePresentation flexBool `json:"hidePresentation"`
	RTMPURL          string   `json:"rtmpUrl"`
}

type stopRequest struct {
	MeetingID string `json:"meetingId"`
}

func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.NewPayloadTooLargeError(tooLarge.Limit)
	}
	return apperrors.NewValidationError("invalid request body: " + err.Error())
}

func (h *StreamHandler) StartStream(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	c.Request = c.Request.WithContext(logger.WithMeetingID(c.Request.Context(), req.MeetingID))
	instance, err := h.controller.Start(c.Request.Context(), domain.StreamRequest{
		MeetingID:        req.MeetingID,
		HidePresentation: bool(req.HidePresentation),
		RTMPURL:          req.RTMPURL,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "stream started",
		"name":    instance.Name,
	})
}

func (h *StreamHandler) StopStream(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	c.Request = c.Request.WithContext(logger.WithMeetingID(c.Request.Context(), req.MeetingID))
	if err := h.controller.Stop(c.Request.Context(), req.MeetingID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "stream stopped"})
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	workers, capacity, err := h.controller.ListWorkers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"streams":  workers,
		"capacity": capacity,
	})
}

func (h *StreamHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

var _ ports.HTTPHandler = (*StreamHandler)(nil)

// NotFound answers unmatched routes through the error middleware.
func NotFound(c *gin.Context) {
	_ = c.Error(apperrors.NewNotFoundError("route " + c.Request.URL.Path))
}
