package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/middleware"
	"github.com/noah-isme/gema-workbench/internal/service"
)

const eventPingInterval = 30 * time.Second

// EventSource is the hub the stream subscribes to.
type EventSource interface {
	Subscribe(assignmentID uint) (<-chan dto.WorkbenchEvent, func())
}

// EventHandler streams workbench events over a websocket.
type EventHandler struct {
	source EventSource
	logger zerolog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(source EventSource, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		source: source,
		logger: logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds the event stream under the provided router group.
func (h *EventHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *EventHandler) handleConnection(conn *websocket.Conn) {
	assignmentID := service.AllAssignments
	if raw := strings.TrimSpace(conn.Query("assignment_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid assignment_id"))
			_ = conn.Close()
			return
		}
		assignmentID = uint(parsed)
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	logger := h.logger.With().
		Uint("assignment_id", assignmentID).
		Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).
		Logger()

	events, cancel := h.source.Subscribe(assignmentID)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logger.Debug().Err(err).Msg("event stream read loop ended")
				return
			}
		}
	}()

	logger.Info().Msg("event stream connected")
	defer logger.Info().Msg("event stream disconnected")

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("event stream write loop terminated")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("event stream ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}
