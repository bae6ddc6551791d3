package queuehub

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/validate"
)

// Handler exposes queue subscriptions over SSE and WebSocket.
type Handler struct {
	hub       *Hub
	heartbeat time.Duration
	upgrader  gorillawebsocket.Upgrader
	logger    zerolog.Logger
	now       func() time.Time
}

// NewHandler builds a stream handler. allowedOrigins limits WebSocket
// upgrades; "*" allows any origin.
func NewHandler(hub *Hub, heartbeat time.Duration, allowedOrigins []string, logger zerolog.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:       hub,
		heartbeat: heartbeat,
		logger:    logger,
		now:       time.Now,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// RegisterRoutes mounts the SSE endpoint on api and the WebSocket endpoint on ws.
func (h *Handler) RegisterRoutes(api, ws *echo.Group) {
	read := auth.RequireCapability(auth.ActionRead, auth.ResourceQueue)
	api.GET("/doctors/:doctorId/queue/stream", h.StreamSSE, read)
	ws.GET("/queue/:doctorId", h.StreamWS, read)
}

// subscription resolves the channel key and patient filter for the request.
// Patients only ever see their own events.
func (h *Handler) subscription(c echo.Context) (ChannelKey, string, error) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return ChannelKey{}, "", apperr.Validation("invalid doctorId", map[string]string{"doctorId": "must be a UUID"})
	}

	date := c.QueryParam("date")
	if date == "" {
		date = h.now().Format(validate.DateLayout)
	} else if _, err := validate.ParseDate(date); err != nil {
		return ChannelKey{}, "", err
	}

	ctx := c.Request().Context()
	patientID := c.QueryParam("patientId")
	if !auth.RoleFromContext(ctx).Staff() {
		self := auth.UserIDFromContext(ctx)
		if patientID != "" && patientID != self {
			return ChannelKey{}, "", echo.NewHTTPError(http.StatusForbidden, "patients may only follow their own bookings")
		}
		patientID = self
	}

	key := ChannelKey{
		OrganizationID: db.OrganizationFromContext(ctx),
		DoctorID:       doctorID,
		Date:           date,
	}
	return key, patientID, nil
}

// StreamSSE serves GET /api/v1/doctors/:doctorId/queue/stream.
func (h *Handler) StreamSSE(c echo.Context) error {
	key, patientID, err := h.subscription(c)
	if err != nil {
		return err
	}

	w, err := NewSSEWriter(c.Response())
	if err != nil {
		return apperr.Internal(err)
	}

	sub := h.hub.Subscribe(key, patientID)
	defer h.hub.Unsubscribe(sub)

	if err := Stream(c.Request().Context(), sub, w, h.heartbeat); err != nil {
		h.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("queue stream closed")
	}
	return nil
}

// StreamWS serves GET /ws/queue/:doctorId.
func (h *Handler) StreamWS(c echo.Context) error {
	key, patientID, err := h.subscription(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return nil
	}
	defer conn.Close()

	sub := h.hub.Subscribe(key, patientID)
	defer h.hub.Unsubscribe(sub)

	// Inbound frames are ignored; a read error means the client went away.
	go func() {
		defer sub.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := Stream(c.Request().Context(), sub, NewWSWriter(conn), h.heartbeat); err != nil {
		h.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("queue websocket closed")
	}
	_ = conn.WriteControl(gorillawebsocket.CloseMessage,
		gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}
