package bus

import (
	"encoding/json"
	"fmt"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Wire message types exchanged between the hub and remote observers.
const (
	// MsgHandshake is sent by an observer immediately after connecting to
	// announce its role.
	MsgHandshake = "HANDSHAKE"
	// MsgWelcome acknowledges a handshake.
	MsgWelcome = "WELCOME"
	// MsgInitialData seeds a freshly connected observer with current state,
	// so push delivery only ever needs to be at-least-once.
	MsgInitialData = "INITIAL_DATA"
	// MsgHeartbeat is an observer-initiated liveness probe.
	MsgHeartbeat = "heartbeat"
	// MsgHeartbeatResponse echoes a heartbeat.
	MsgHeartbeatResponse = "heartbeat-response"
	// MsgActivityUpdate pushes one activity record on every publish.
	MsgActivityUpdate = "activity-update"
	// MsgTransaction announces a newly submitted transaction.
	MsgTransaction = "TRANSACTION"
	// MsgTransactionUpdate announces a status transition for a known hash.
	MsgTransactionUpdate = "TRANSACTION_UPDATE"
)

// Envelope is the wire frame for every bus message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HandshakePayload announces the observer's role.
type HandshakePayload struct {
	Role string `json:"role"`
}

// WelcomePayload acknowledges the observer and tells it how often to probe.
type WelcomePayload struct {
	Role                string `json:"role"`
	HeartbeatIntervalMs int64  `json:"heartbeat_interval_ms"`
}

// InitialDataPayload carries the full current activity state.
type InitialDataPayload struct {
	Activities []*types.ActivityRecord `json:"activities"`
}

func encode(msgType string, data interface{}) ([]byte, error) {
	env := Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Data = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return out, nil
}

// updateType distinguishes a first-seen transaction from a status
// transition, so observers can key their local view by hash and apply
// updates as overwrites.
func updateType(rec *types.ActivityRecord) string {
	if rec.Status == types.StatusPending {
		return MsgTransaction
	}
	return MsgTransactionUpdate
}
