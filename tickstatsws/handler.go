package tickstatsws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tickstats/tickstats-go"
)

// ErrInvalidFrame is reported in an Ack when a frame cannot be decoded or is missing a symbol.
var ErrInvalidFrame = errors.New("invalid frame")

const writeTimeout = 5 * time.Second

// Frame is a batch sent by a client.
type Frame struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

// Ack is sent to the client for each Frame, in the order frames were received.
type Ack struct {
	Symbol string `json:"symbol"`
	// The number of values appended, which is 0 when Error is set
	Accepted int `json:"accepted"`
	// The reason the frame was rejected, else empty
	Error string `json:"error,omitempty"`
}

// NewHandler returns an http.Handler that upgrades requests to WebSocket connections and ingests each JSON Frame received
// on a connection into the engine, replying with an Ack. A rejected frame does not close the connection. If logger is
// nil, nothing is logged.
func NewHandler(engine tickstats.Engine, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type handler struct {
	engine   tickstats.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("stream opened")
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("stream closed unexpectedly", zap.Error(err))
			} else {
				logger.Debug("stream closed")
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		ack := h.ingest(message)
		if ack.Error != "" {
			logger.Debug("frame rejected", zap.String("symbol", ack.Symbol), zap.String("error", ack.Error))
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ack); err != nil {
			logger.Warn("ack failed", zap.Error(err))
			return
		}
	}
}

func (h *handler) ingest(message []byte) Ack {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		return Ack{Error: fmt.Errorf("%w: %w", ErrInvalidFrame, err).Error()}
	}
	if frame.Symbol == "" {
		return Ack{Error: fmt.Errorf("%w: symbol is required", ErrInvalidFrame).Error()}
	}
	if err := h.engine.Ingest(frame.Symbol, frame.Values); err != nil {
		return Ack{Symbol: frame.Symbol, Error: err.Error()}
	}
	return Ack{Symbol: frame.Symbol, Accepted: len(frame.Values)}
}
