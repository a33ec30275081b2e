// Package bus fans out activity status changes to connected observers over
// WebSocket, with handshake, initial-data seeding, and heartbeat liveness.
// Delivery is at-least-once per observer: a slow or disconnected observer
// may miss pushes, so a (re)connected observer is always seeded with full
// current state before receiving incremental updates.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// sendBuffer is the per-observer queue depth. An observer that falls this
// far behind is presumed dead and disconnected; it reseeds via INITIAL_DATA
// on reconnect.
const sendBuffer = 64

// ActivitySource provides the current activity state for INITIAL_DATA.
type ActivitySource interface {
	RecentActivities(ctx context.Context) ([]*types.ActivityRecord, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens at session validation, not here:
		// observers are trusted internal services, not browsers.
		return true
	},
}

// observer is one connected remote observer. Messages flow through a
// buffered channel drained by a single writer goroutine, which preserves
// publish order per observer (and therefore per hash).
type observer struct {
	conn *websocket.Conn
	send chan []byte
	role string
}

// Hub is the activity publish/subscribe channel. Local subscribers receive
// records in-process; remote observers receive them over WebSocket.
type Hub struct {
	source            ActivitySource
	heartbeatInterval time.Duration
	logger            *slog.Logger

	mu        sync.RWMutex
	observers map[*observer]struct{}
	locals    map[chan *types.ActivityRecord]struct{}
	closed    bool
}

// NewHub creates an activity hub. source seeds INITIAL_DATA for every
// observer that completes a handshake.
func NewHub(source ActivitySource, heartbeatInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:            source,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
		observers:         make(map[*observer]struct{}),
		locals:            make(map[chan *types.ActivityRecord]struct{}),
	}
}

// Publish fans an activity record out to every observer. Fan-out across
// observers is concurrent and unordered, but each observer's own stream
// preserves publish order, so a confirmed update for a hash can never
// arrive before its pending record on the same connection.
func (h *Hub) Publish(rec *types.ActivityRecord) {
	frame, err := encode(MsgActivityUpdate, rec)
	if err != nil {
		h.logger.Error("failed to encode activity update", "error", err, "hash", rec.Hash)
		return
	}
	txFrame, err := encode(updateType(rec), rec)
	if err != nil {
		h.logger.Error("failed to encode transaction frame", "error", err, "hash", rec.Hash)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	publishedTotal.Inc()

	for ch := range h.locals {
		select {
		case ch <- rec:
		default:
			// Local subscriber is not draining; dropping beats blocking
			// the publish path. It can re-read state from the source.
			droppedTotal.Inc()
		}
	}

	for obs := range h.observers {
		if !obs.enqueue(frame) || !obs.enqueue(txFrame) {
			// Queue full: the observer is presumed dead. Closing the
			// connection forces a reconnect with a fresh INITIAL_DATA seed
			// instead of delivering a gapped stream.
			h.logger.Warn("disconnecting slow observer", "role", obs.role)
			obs.conn.Close()
		}
	}
}

// Subscribe registers an in-process observer. The returned cancel function
// must be called to release the subscription.
func (h *Hub) Subscribe() (<-chan *types.ActivityRecord, func()) {
	ch := make(chan *types.ActivityRecord, sendBuffer)

	h.mu.Lock()
	h.locals[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.locals, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// ObserverCount returns the number of connected remote observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// ServeWS upgrades an HTTP request to a WebSocket observer connection and
// runs its lifecycle: handshake, welcome, initial data, then push until the
// observer disconnects or goes silent.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}

	role, err := h.awaitHandshake(conn)
	if err != nil {
		h.logger.Warn("observer handshake failed", "error", err)
		conn.Close()
		return
	}

	obs := &observer{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		role: role,
	}

	if err := h.welcome(r.Context(), obs); err != nil {
		h.logger.Error("failed to seed observer", "error", err, "role", role)
		conn.Close()
		return
	}

	h.mu.Lock()
	h.observers[obs] = struct{}{}
	h.mu.Unlock()
	connectedObservers.Inc()

	h.logger.Info("observer connected", "role", role)

	go h.writePump(obs)
	h.readPump(obs)

	h.mu.Lock()
	delete(h.observers, obs)
	h.mu.Unlock()
	connectedObservers.Dec()

	close(obs.send)
	conn.Close()
	h.logger.Info("observer disconnected", "role", role)
}

// awaitHandshake reads the observer's HANDSHAKE frame.
func (h *Hub) awaitHandshake(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(h.heartbeatInterval))

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return "", err
	}
	if env.Type != MsgHandshake {
		return "", errUnexpectedFrame(env.Type)
	}

	var payload HandshakePayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return "", err
		}
	}
	if payload.Role == "" {
		payload.Role = "observer"
	}
	return payload.Role, nil
}

// welcome acknowledges the handshake and seeds current state, written
// directly since the observer is not yet registered for fan-out.
func (h *Hub) welcome(ctx context.Context, obs *observer) error {
	welcome, err := encode(MsgWelcome, WelcomePayload{
		Role:                obs.role,
		HeartbeatIntervalMs: h.heartbeatInterval.Milliseconds(),
	})
	if err != nil {
		return err
	}
	if err := obs.conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		return err
	}

	activities, err := h.source.RecentActivities(ctx)
	if err != nil {
		return err
	}
	initial, err := encode(MsgInitialData, InitialDataPayload{Activities: activities})
	if err != nil {
		return err
	}
	return obs.conn.WriteMessage(websocket.TextMessage, initial)
}

// readPump consumes observer frames until the connection dies. Any traffic
// refreshes the liveness deadline; an observer silent for two heartbeat
// intervals is presumed dead and the read times out.
func (h *Hub) readPump(obs *observer) {
	deadline := 2 * h.heartbeatInterval
	obs.conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		var env Envelope
		if err := obs.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("observer connection closed unexpectedly", "error", err, "role", obs.role)
			}
			return
		}
		obs.conn.SetReadDeadline(time.Now().Add(deadline))

		if env.Type == MsgHeartbeat {
			heartbeatsTotal.Inc()
			pong, err := encode(MsgHeartbeatResponse, nil)
			if err != nil {
				continue
			}
			if !obs.enqueue(pong) {
				return
			}
		}
	}
}

// writePump drains the observer's queue onto the wire. One writer per
// connection; gorilla/websocket forbids concurrent writers.
func (h *Hub) writePump(obs *observer) {
	for frame := range obs.send {
		obs.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := obs.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			obs.conn.Close()
			return
		}
	}
}

// enqueue offers a frame to the observer without blocking the publisher.
func (o *observer) enqueue(frame []byte) bool {
	select {
	case o.send <- frame:
		return true
	default:
		return false
	}
}

type errUnexpectedFrame string

func (e errUnexpectedFrame) Error() string {
	return "expected HANDSHAKE frame, got " + string(e)
}
