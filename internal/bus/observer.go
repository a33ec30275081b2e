package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// ObserverHandler receives bus frames on an observer connection. Initial is
// called once per (re)connection with the full seeded state; Update is
// called for each incremental frame after that. Returning an error drops
// the connection and triggers a reconnect.
type ObserverHandler interface {
	Initial(activities []*types.ActivityRecord) error
	Update(msgType string, rec *types.ActivityRecord) error
}

// ObserverConfig configures a reconnecting observer client.
type ObserverConfig struct {
	// URL is the ws:// or wss:// endpoint of the activity hub.
	URL string

	// Role identifies this observer in the handshake.
	Role string

	// MaxAttempts caps consecutive failed connection attempts before Run
	// gives up. Zero means retry forever.
	MaxAttempts uint64

	// InitialInterval is the first reconnect delay. Defaults to one second.
	InitialInterval time.Duration
}

// Observer is a resilient client for the activity hub. It performs the
// handshake, consumes INITIAL_DATA, responds to nothing (heartbeats flow
// client to server), and reconnects with exponential backoff when the
// connection drops.
type Observer struct {
	config  ObserverConfig
	handler ObserverHandler
	logger  *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
}

// NewObserver creates an observer client. The handler must not be nil.
func NewObserver(config ObserverConfig, handler ObserverHandler, logger *slog.Logger) (*Observer, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("observer URL is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("observer handler is required")
	}
	if config.Role == "" {
		config.Role = "observer"
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		config:  config,
		handler: handler,
		logger:  logger,
	}, nil
}

// Run connects to the hub and blocks until the context is cancelled or the
// attempt cap is exhausted. Each successful connection resets the backoff.
func (o *Observer) Run(ctx context.Context) error {
	for {
		policy := o.newBackoff(ctx)

		err := backoff.Retry(func() error {
			return o.connect(ctx)
		}, policy)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connecting to activity hub: %w", err)
		}

		o.readLoop(ctx)
		o.close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Info("activity hub connection lost, reconnecting")
	}
}

func (o *Observer) newBackoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.config.InitialInterval
	exp.MaxInterval = 30 * time.Second

	var policy backoff.BackOff = exp
	if o.config.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(exp, o.config.MaxAttempts-1)
	}
	return backoff.WithContext(policy, ctx)
}

// connect dials the hub, performs the handshake, and delivers the
// INITIAL_DATA seed to the handler.
func (o *Observer) connect(ctx context.Context) error {
	o.logger.Info("connecting to activity hub", "url", o.config.URL, "role", o.config.Role)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, o.config.URL, nil)
	if err != nil {
		return err
	}

	hello, err := encode(MsgHandshake, HandshakePayload{Role: o.config.Role})
	if err != nil {
		conn.Close()
		return backoff.Permanent(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		conn.Close()
		return err
	}

	welcome, err := o.expect(conn, MsgWelcome)
	if err != nil {
		conn.Close()
		return err
	}
	var wp WelcomePayload
	if err := json.Unmarshal(welcome.Data, &wp); err != nil {
		conn.Close()
		return err
	}

	initial, err := o.expect(conn, MsgInitialData)
	if err != nil {
		conn.Close()
		return err
	}
	var ip InitialDataPayload
	if err := json.Unmarshal(initial.Data, &ip); err != nil {
		conn.Close()
		return err
	}
	if err := o.handler.Initial(ip.Activities); err != nil {
		conn.Close()
		return backoff.Permanent(err)
	}

	o.mu.Lock()
	o.conn = conn
	o.isConnected = true
	o.mu.Unlock()

	go o.heartbeatLoop(ctx, conn, time.Duration(wp.HeartbeatIntervalMs)*time.Millisecond)

	o.logger.Info("connected to activity hub", "heartbeat_interval_ms", wp.HeartbeatIntervalMs)
	return nil
}

func (o *Observer) expect(conn *websocket.Conn, msgType string) (*Envelope, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	if env.Type != msgType {
		return nil, fmt.Errorf("expected %s frame, got %s", msgType, env.Type)
	}
	return &env, nil
}

// heartbeatLoop sends periodic heartbeats so the hub keeps the connection
// alive. Exits when the interval elapses on a dead connection or the
// context is cancelled.
func (o *Observer) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat, err := encode(MsgHeartbeat, nil)
			if err != nil {
				return
			}
			o.mu.Lock()
			current := o.conn
			o.mu.Unlock()
			if current != conn {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, beat); err != nil {
				return
			}
		}
	}
}

// readLoop consumes frames until the connection closes, dispatching
// activity updates to the handler. Heartbeat responses are consumed
// silently.
func (o *Observer) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.mu.Lock()
		conn := o.conn
		o.mu.Unlock()
		if conn == nil {
			return
		}

		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			o.logger.Warn("activity hub connection closed", "error", err)
			return
		}

		switch env.Type {
		case MsgHeartbeatResponse:
			// liveness ack, nothing to do
		case MsgActivityUpdate, MsgTransaction, MsgTransactionUpdate:
			var rec types.ActivityRecord
			if err := json.Unmarshal(env.Data, &rec); err != nil {
				o.logger.Error("malformed activity frame", "error", err, "type", env.Type)
				continue
			}
			if err := o.handler.Update(env.Type, &rec); err != nil {
				o.logger.Error("observer handler error", "error", err)
				return
			}
		default:
			o.logger.Debug("ignoring unknown frame", "type", env.Type)
		}
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil {
		_ = o.conn.Close()
		o.conn = nil
	}
	o.isConnected = false
}

// IsConnected reports whether the observer currently holds a live
// connection to the hub.
func (o *Observer) IsConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isConnected
}
