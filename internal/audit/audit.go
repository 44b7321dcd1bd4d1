package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EventDebit      = "DEBIT"
	EventCredit     = "CREDIT"
	EventTransfer   = "TRANSFER"
	EventTransition = "TRANSITION"
	EventError      = "ERROR"
)

// Auditor records committed money movements and state changes.
type Auditor interface {
	LogEntry(eventType string, accountUserID, amount int64, reference string)
	LogTransfer(transferID, senderID, receiverID, amount int64)
	LogTransition(vertical string, recordID int64, from, to string)
	LogError(operation, reference string, err error)
}

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Reference string         `json:"reference,omitempty"`
	UserID    int64          `json:"user_id,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{logger: log.Logger.With().Bool("audit", true).Logger()}
}

// NewLoggerWith writes audit events to the given logger.
func NewLoggerWith(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Bool("audit", true).Logger()}
}

func (a *Logger) LogEntry(eventType string, accountUserID, amount int64, reference string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Reference: reference,
		UserID:    accountUserID,
		Amount:    amount,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogTransfer(transferID, senderID, receiverID, amount int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: EventTransfer,
		UserID:    senderID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"transfer_id": transferID,
			"receiver_id": receiverID,
		},
	})
}

func (a *Logger) LogTransition(vertical string, recordID int64, from, to string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: EventTransition,
		Status:    "SUCCESS",
		Details: map[string]any{
			"vertical":  vertical,
			"record_id": recordID,
			"from":      from,
			"to":        to,
		},
	})
}

func (a *Logger) LogError(operation, reference string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: EventError,
		Reference: reference,
		Status:    "FAILED",
		Details: map[string]any{
			"operation": operation,
			"error":     err.Error(),
		},
	})
}

func (a *Logger) log(event Event) {
	e := a.logger.Info()
	if event.EventType == EventError {
		e = a.logger.Warn()
	}
	e.Str("event_type", event.EventType).
		Time("event_time", event.Timestamp).
		Str("reference", event.Reference).
		Int64("user_id", event.UserID).
		Int64("amount", event.Amount).
		Str("status", event.Status).
		Interface("details", event.Details).
		Msg("audit")
}
