package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested event does not exist.
var ErrNotFound = errors.New("not found")

// Audit actions.
const (
	ActionSave   = "save"
	ActionAdd    = "add"
	ActionDelete = "delete"
)

// Event is one committed catalogue mutation. NewNumber and NewTitle are set
// only for saves, and may equal Number and Title when the key did not change.
type Event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Number    string    `json:"number"`
	Title     string    `json:"title"`
	NewNumber string    `json:"new_number,omitempty"`
	NewTitle  string    `json:"new_title,omitempty"`
}
