package contracts

import "time"

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSMessage is the envelope of every message pushed to websocket clients
type WSMessage[T any] struct {
	Type      string    `json:"type"`    // e.g. "session", "shipments"
	Version   int       `json:"version"` // schema version
	Seq       uint64    `json:"seq"`     // per-hub, increasing
	EmittedAt time.Time `json:"emittedAt"`
	Data      T         `json:"data"`
	Error     *WSError  `json:"error,omitempty"`
}

// WSSchemaVersion is the current envelope version
const WSSchemaVersion = 1
