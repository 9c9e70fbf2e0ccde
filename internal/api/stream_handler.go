package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// Clients only ever send {"type":"ping"}.
	maxClientMessage = 512
)

// StreamHandler serves live query snapshots over WebSocket.
type StreamHandler struct {
	doubtService   core.DoubtService
	paymentService core.PaymentService
	metrics        *metrics.Metrics
	logger         *zap.Logger
	upgrader       websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler. Upgrades are accepted from the
// comma-separated clientURL origins, or from anywhere when it is empty.
func NewStreamHandler(ds core.DoubtService, ps core.PaymentService, clientURL string, m *metrics.Metrics, logger *zap.Logger) *StreamHandler {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(clientURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}
	return &StreamHandler{
		doubtService:   ds,
		paymentService: ps,
		metrics:        m,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return allowed[u.Scheme+"://"+u.Host]
			},
		},
	}
}

// MyDoubts handles GET /doubts/ws?status=
func (h *StreamHandler) MyDoubts(c *gin.Context) {
	user := middleware.CurrentUser(c)
	status := models.DoubtStatus(c.Query("status"))
	serveSnapshots(h, c, "my_doubts", func(ctx context.Context) (db.Stream[*models.Doubt], error) {
		return h.doubtService.WatchMyDoubts(ctx, user, status)
	})
}

// Messages handles GET /doubts/:doubtId/messages/ws
func (h *StreamHandler) Messages(c *gin.Context) {
	user := middleware.CurrentUser(c)
	doubtID := c.Param("doubtId")
	serveSnapshots(h, c, "messages", func(ctx context.Context) (db.Stream[*models.Message], error) {
		return h.doubtService.WatchMessages(ctx, user, doubtID)
	})
}

// AdminDoubts handles GET /admin/doubts/ws?status=&subject=&search=&limit=
func (h *StreamHandler) AdminDoubts(c *gin.Context) {
	var filter models.DoubtFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return
	}
	user := middleware.CurrentUser(c)
	serveSnapshots(h, c, "admin_doubts", func(ctx context.Context) (db.Stream[*models.Doubt], error) {
		return h.doubtService.WatchDoubts(ctx, user, filter)
	})
}

// AdminPayments handles GET /admin/payments/ws?status=&search=&limit=
func (h *StreamHandler) AdminPayments(c *gin.Context) {
	var filter models.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return
	}
	user := middleware.CurrentUser(c)
	serveSnapshots(h, c, "admin_payments", func(ctx context.Context) (db.Stream[*models.Payment], error) {
		return h.paymentService.WatchPayments(ctx, user, filter)
	})
}

// serveSnapshots opens the stream before upgrading so that permission and
// validation failures still get a regular HTTP error response. The stream
// is closed as soon as either side goes away.
func serveSnapshots[T any](h *StreamHandler, c *gin.Context, kind string, open func(ctx context.Context) (db.Stream[T], error)) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := open(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer stream.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Warn("WebSocket upgrade failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	defer conn.Close()
	defer h.metrics.StreamOpened(kind)()

	ws := &wsConn{conn: conn}
	go ws.readPump(cancel, h.logger)
	writeSnapshots(ctx, ws, stream, h.logger)
}

// wsConn serialises writes; gorilla allows one concurrent writer per connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) writeControl(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

// readPump answers application pings and cancels the stream when the client
// disconnects or stops answering protocol pings.
func (w *wsConn) readPump(cancel context.CancelFunc, logger *zap.Logger) {
	defer cancel()
	w.conn.SetReadLimit(maxClientMessage)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		var frame StreamFrame
		if json.Unmarshal(msg, &frame) == nil && frame.Type == FramePing {
			if err := w.writeJSON(StreamFrame{Type: FramePong}); err != nil {
				return
			}
		}
	}
}

// writeSnapshots forwards every snapshot until the stream or the context ends.
func writeSnapshots[T any](ctx context.Context, w *wsConn, stream db.Stream[T], logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := w.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		case snap, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					logger.Warn("Live query failed", zap.Error(err))
					_ = w.writeJSON(StreamFrame{Type: FrameError, Error: "live query failed"})
				}
				_ = w.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			items := snap.Items
			if items == nil {
				items = []T{}
			}
			if err := w.writeJSON(StreamFrame{Type: FrameSnapshot, Data: items}); err != nil {
				return
			}
		}
	}
}
