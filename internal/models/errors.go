package models

import "fmt"

// ValidationError rejects a malformed session request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// ConfigError rejects session config outside the engine's contract.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "invalid config: " + e.Message
}

// NotFoundError reports an unknown session, match or queue item id.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ConflictError reports a stale decision attempt. Current carries the
// authoritative state so the caller can refresh and retry deliberately.
type ConflictError struct {
	Resource string
	ID       uint
	Message  string
	Current  interface{}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %d: %s", e.Resource, e.ID, e.Message)
}

// ProcessingError is an isolated per-transaction failure. It accumulates in
// the session error log and never fails the whole session.
type ProcessingError struct {
	TransactionID uint
	Err           error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.TransactionID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
