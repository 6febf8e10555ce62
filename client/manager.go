package client

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

// ConnectionState is the client connection lifecycle state
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
)

// Local events emitted by the manager itself, alongside server message kinds
const (
	EventConnected       = "connection:established"
	EventDisconnected    = "connection:lost"
	EventReconnectFailed = "connection:reconnect-failed"
)

// Transport is the wire the manager speaks over. gorilla/websocket's Conn
// satisfies it; tests substitute fakes. The transport supports only one
// concurrent writer, so every outbound message goes through the manager's
// single write loop.
type Transport interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

// Dialer opens a transport to the server
type Dialer func(rawURL string, header http.Header) (Transport, error)

func defaultDialer(rawURL string, header http.Header) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Manager
type Options struct {
	URL                  string
	Token                string
	HeartbeatInterval    time.Duration
	BaseReconnectDelay   time.Duration
	MaxReconnectAttempts int
	Logger               *utils.Logger
	Dialer               Dialer
}

// Manager owns a client connection's lifecycle: connect, heartbeat,
// reconnect with capped exponential backoff, and an outbound FIFO queue.
// All sends pass through the queue and one write loop per connection, so
// the transport only ever sees a single writer and queue order is
// preserved across reconnects.
type Manager struct {
	opts    Options
	emitter *Emitter
	logger  *utils.Logger

	mu        sync.Mutex
	state     ConnectionState
	transport Transport
	token     string
	attempts  int
	queue     []interface{}

	// epoch invalidates timers and loops from earlier connection
	// cycles: a handle that fires after disconnect() finds a newer epoch
	// and does nothing.
	epoch          int
	heartbeatStop  chan struct{}
	writerWake     chan struct{}
	reconnectTimer *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.BaseReconnectDelay <= 0 {
		opts.BaseReconnectDelay = time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger()
	}
	if opts.Dialer == nil {
		opts.Dialer = defaultDialer
	}

	return &Manager{
		opts:    opts,
		emitter: NewEmitter(opts.Logger),
		logger:  opts.Logger,
		state:   StateDisconnected,
		token:   opts.Token,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// On registers a callback for a server message kind or local event
func (m *Manager) On(event string, handler Handler) int {
	return m.emitter.On(event, handler)
}

// Off deregisters a callback by the token On returned
func (m *Manager) Off(event string, token int) {
	m.emitter.Off(event, token)
}

// UpdateToken swaps the credential used on the next connection attempt.
// An already-connected session is left alone.
func (m *Manager) UpdateToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Connect starts a connection attempt. It is idempotent: while CONNECTING
// or CONNECTED the call is a no-op. An explicit call also restarts the
// cycle after reconnect exhaustion.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.stopReconnectTimerLocked()
	m.attempts = 0
	m.state = StateConnecting
	epoch := m.epoch
	m.mu.Unlock()

	go m.dial(epoch)
}

// Disconnect tears the connection down. Safe to call repeatedly and from
// any state; every pending timer from before the call is invalidated.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	m.stopHeartbeatLocked()
	m.stopWriterLocked()
	m.stopReconnectTimerLocked()
	transport := m.transport
	m.transport = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
}

// Send appends the message to the FIFO queue. While connected the write
// loop drains it immediately; while disconnected it waits for the next
// flush. Extra fields are merged beside the kind, matching the server's
// flat inbound message shape.
func (m *Manager) Send(kind string, data map[string]interface{}) {
	msg := map[string]interface{}{"kind": kind}
	for key, value := range data {
		msg[key] = value
	}

	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.signalWriterLocked()
	m.mu.Unlock()
}

// SubscribeSuite joins the per-suite room on the server
func (m *Manager) SubscribeSuite(suiteID string) {
	m.Send(models.InboundSubscribeSuite, map[string]interface{}{"suiteId": suiteID})
}

// UnsubscribeSuite leaves the per-suite room
func (m *Manager) UnsubscribeSuite(suiteID string) {
	m.Send(models.InboundUnsubscribeSuite, map[string]interface{}{"suiteId": suiteID})
}

// SubscribeTask joins the per-task room on the server
func (m *Manager) SubscribeTask(taskID string) {
	m.Send(models.InboundSubscribeTask, map[string]interface{}{"taskId": taskID})
}

// UnsubscribeTask leaves the per-task room
func (m *Manager) UnsubscribeTask(taskID string) {
	m.Send(models.InboundUnsubscribeTask, map[string]interface{}{"taskId": taskID})
}

func (m *Manager) dial(epoch int) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	transport, err := m.opts.Dialer(m.dialURL(token), nil)

	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnecting {
		m.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("Connection attempt failed", "error", err)
		m.state = StateDisconnected
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.transport = transport
	m.state = StateConnected
	m.attempts = 0
	m.startWriterLocked(epoch, transport)
	m.startHeartbeatLocked(epoch)
	m.mu.Unlock()

	m.logger.Info("Connected")
	m.emitter.Emit(EventConnected, nil)

	go m.readLoop(epoch, transport)
}

func (m *Manager) dialURL(token string) string {
	parsed, err := url.Parse(m.opts.URL)
	if err != nil {
		return m.opts.URL
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// readLoop dispatches incoming envelopes by kind until the transport dies
func (m *Manager) readLoop(epoch int, transport Transport) {
	for {
		var env models.Envelope
		if err := transport.ReadJSON(&env); err != nil {
			m.handleTransportLoss(epoch, err)
			return
		}

		m.mu.Lock()
		stale := epoch != m.epoch
		m.mu.Unlock()
		if stale {
			return
		}

		m.emitter.Emit(env.Kind, env.Data)
	}
}

// writeLoop is this connection's only writer. It drains the queue strictly
// in FIFO order; a failed write is put back at the head for the next
// connection's flush.
func (m *Manager) writeLoop(epoch int, transport Transport, wake chan struct{}) {
	for {
		m.mu.Lock()
		if epoch != m.epoch || m.state != StateConnected || m.transport != transport {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			<-wake
			continue
		}
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := transport.WriteJSON(msg); err != nil {
			m.logger.Warn("Write failed, message stays queued", "error", err)
			m.mu.Lock()
			if epoch == m.epoch {
				m.queue = append([]interface{}{msg}, m.queue...)
			}
			m.mu.Unlock()
			return
		}
	}
}

// handleTransportLoss runs the involuntary-disconnect path. A loss caused
// by an explicit Disconnect carries a stale epoch and is ignored.
func (m *Manager) handleTransportLoss(epoch int, cause error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.stopWriterLocked()
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Warn("Connection lost", "error", cause)
	m.emitter.Emit(EventDisconnected, nil)
}

func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.logger.Error("Reconnect attempts exhausted", "attempts", m.attempts)
		go m.emitter.Emit(EventReconnectFailed, nil)
		return
	}

	m.attempts++
	delay := m.opts.BaseReconnectDelay * time.Duration(1<<(m.attempts-1))
	m.state = StateReconnecting
	epoch := m.epoch

	m.logger.Info("Scheduling reconnect", "attempt", m.attempts, "delay", delay.String())

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if epoch != m.epoch || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()

		m.dial(epoch)
	})
}

func (m *Manager) startWriterLocked(epoch int, transport Transport) {
	wake := make(chan struct{}, 1)
	m.writerWake = wake
	go m.writeLoop(epoch, transport, wake)
}

// signalWriterLocked nudges the write loop; the buffered slot makes the
// signal coalesce instead of block.
func (m *Manager) signalWriterLocked() {
	if m.writerWake == nil {
		return
	}
	select {
	case m.writerWake <- struct{}{}:
	default:
	}
}

func (m *Manager) stopWriterLocked() {
	if m.writerWake != nil {
		close(m.writerWake)
		m.writerWake = nil
	}
}

func (m *Manager) startHeartbeatLocked(epoch int) {
	stop := make(chan struct{})
	m.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(m.opts.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				if epoch != m.epoch || m.state != StateConnected {
					m.mu.Unlock()
					return
				}
				// Heartbeats ride the same queue as every other send
				m.queue = append(m.queue, map[string]interface{}{
					"kind":      models.InboundHeartbeat,
					"timestamp": time.Now().UnixMilli(),
				})
				m.signalWriterLocked()
				m.mu.Unlock()
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}
