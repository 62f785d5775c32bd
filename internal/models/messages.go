package models

import "time"

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const WSTypeTimerUpdate = "timer_update"

type TimerEvent struct {
	UserID    int64     `json:"user_id"`
	Item      ItemRef   `json:"item"`
	Action    string    `json:"action"` // "started" | "paused" | "resumed" | "finished"
	Status    Status    `json:"status"`
	SessionID int64     `json:"session_id"`
	At        time.Time `json:"at"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
