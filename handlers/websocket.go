package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stayhub/realtime-service/middleware"
	"stayhub/realtime-service/models"
	"stayhub/realtime-service/services"
	"stayhub/realtime-service/utils"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var (
	errSendBufferFull   = errors.New("connection send buffer full")
	errConnectionClosed = errors.New("connection closed")
)

// connection pairs a websocket with its buffered outbound channel. The
// write pump drains the channel in order, so per-connection delivery order
// matches the order of SendEnvelope calls.
type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan models.Envelope

	mu     sync.Mutex
	closed bool
}

// SendEnvelope enqueues an envelope for the write pump. A full buffer means
// the client is dead or too slow; the send is dropped and reported.
func (c *connection) SendEnvelope(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.send <- env:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.ws.Close()
}

type inboundHandler func(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage)

// WebSocketHandler upgrades verified clients and bridges them to the registry
type WebSocketHandler struct {
	registry  *services.Registry
	logger    *utils.Logger
	jwtSecret string
	upgrader  websocket.Upgrader

	dispatch map[string]inboundHandler
}

func NewWebSocketHandler(registry *services.Registry, logger *utils.Logger, jwtSecret string) *WebSocketHandler {
	h := &WebSocketHandler{
		registry:  registry,
		logger:    logger,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	h.dispatch = map[string]inboundHandler{
		models.InboundHeartbeat:        h.handleHeartbeat,
		models.InboundSubscribeSuite:   h.handleSubscribeSuite,
		models.InboundUnsubscribeSuite: h.handleUnsubscribeSuite,
		models.InboundSubscribeTask:    h.handleSubscribeTask,
		models.InboundUnsubscribeTask:  h.handleUnsubscribeTask,
	}

	return h
}

// Serve handles GET /ws. The credential is verified before the upgrade;
// a rejected credential terminates the request with no descriptive payload
// and the registry is never touched.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	tokenString := middleware.ExtractToken(c.Request)
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := middleware.VerifyToken(h.jwtSecret, tokenString)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:     uuid.New().String(),
		userID: claims.SubjectID,
		ws:     ws,
		send:   make(chan models.Envelope, sendBufferSize),
	}

	record := h.registry.Register(conn.id, claims.SubjectID, claims.Role, claims.Department, conn)

	go h.writePump(conn)

	conn.SendEnvelope(models.NewEnvelope(models.KindConnected, "connection", map[string]string{
		"connectionId": conn.id,
		"userId":       claims.SubjectID,
	}, ""))

	h.readPump(record, conn)
}

// readPump consumes inbound messages until the connection drops, then
// unregisters and closes.
func (h *WebSocketHandler) readPump(record *services.ConnectionRecord, conn *connection) {
	defer func() {
		h.registry.Unregister(conn.id)
		conn.close()
	}()

	for {
		var msg models.InboundMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Websocket read error", "connection_id", conn.id, "error", err)
			}
			return
		}

		handler, ok := h.dispatch[msg.Kind]
		if !ok {
			h.logger.Warn("Unknown inbound message kind", "connection_id", conn.id, "kind", msg.Kind)
			continue
		}
		handler(record, conn, msg)
	}
}

func (h *WebSocketHandler) writePump(conn *connection) {
	for env := range conn.send {
		conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteJSON(env); err != nil {
			h.logger.Warn("Websocket write error", "connection_id", conn.id, "error", err)
			conn.ws.Close()
			return
		}
	}
}

func (h *WebSocketHandler) handleHeartbeat(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage) {
	h.registry.TouchPresence(record.UserID)
	conn.SendEnvelope(models.NewEnvelope(models.KindHeartbeatAck, "connection", map[string]int64{
		"timestamp": time.Now().UnixMilli(),
	}, ""))
}

func (h *WebSocketHandler) handleSubscribeSuite(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage) {
	if msg.SuiteID == "" {
		return
	}
	h.registry.Join(conn.id, models.SuiteRoom(msg.SuiteID))
}

func (h *WebSocketHandler) handleUnsubscribeSuite(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage) {
	if msg.SuiteID == "" {
		return
	}
	h.registry.Leave(conn.id, models.SuiteRoom(msg.SuiteID))
}

func (h *WebSocketHandler) handleSubscribeTask(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage) {
	if msg.TaskID == "" {
		return
	}
	h.registry.Join(conn.id, models.TaskRoom(msg.TaskID))
}

func (h *WebSocketHandler) handleUnsubscribeTask(record *services.ConnectionRecord, conn *connection, msg models.InboundMessage) {
	if msg.TaskID == "" {
		return
	}
	h.registry.Leave(conn.id, models.TaskRoom(msg.TaskID))
}
