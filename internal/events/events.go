// Package events defines the engine's emitted event stream. Plain escrows
// emit amounts; confidential escrows emit identity-only payloads so that no
// amount ever leaves the encrypted domain.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Event types emitted by the engine.
const (
	TypeEscrowCreated         = "EscrowCreated"
	TypeEscrowResolved        = "EscrowResolved"
	TypePrivateEscrowCreated  = "PrivateEscrowCreated"
	TypePrivateEscrowResolved = "PrivateEscrowResolved"
	TypePrivateDisputeRaised  = "PrivateDisputeRaised"
)

// Event is a single engine event.
type Event struct {
	Type       string            `json:"type"`
	EscrowID   int64             `json:"escrowId"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Emitter receives engine events.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// EscrowCreated is emitted when a plain escrow is created.
func EscrowCreated(id int64, buyer, seller, amount string) Event {
	return Event{
		Type:     TypeEscrowCreated,
		EscrowID: id,
		Attributes: map[string]string{
			"buyer":  buyer,
			"seller": seller,
			"amount": amount,
		},
		EmittedAt: time.Now(),
	}
}

// EscrowResolved is emitted when a plain escrow reaches a terminal state.
func EscrowResolved(id int64, outcome string) Event {
	return Event{
		Type:       TypeEscrowResolved,
		EscrowID:   id,
		Attributes: map[string]string{"outcome": outcome},
		EmittedAt:  time.Now(),
	}
}

// PrivateEscrowCreated is emitted when a confidential escrow is created.
// Carries parties only, never the amount.
func PrivateEscrowCreated(id int64, buyer, seller string) Event {
	return Event{
		Type:     TypePrivateEscrowCreated,
		EscrowID: id,
		Attributes: map[string]string{
			"buyer":  buyer,
			"seller": seller,
		},
		EmittedAt: time.Now(),
	}
}

// PrivateEscrowResolved is emitted when a confidential escrow reaches a
// terminal state.
func PrivateEscrowResolved(id int64, outcome string) Event {
	return Event{
		Type:       TypePrivateEscrowResolved,
		EscrowID:   id,
		Attributes: map[string]string{"outcome": outcome},
		EmittedAt:  time.Now(),
	}
}

// PrivateDisputeRaised is emitted when a dispute is opened on a confidential
// escrow.
func PrivateDisputeRaised(id int64, party string) Event {
	return Event{
		Type:       TypePrivateDisputeRaised,
		EscrowID:   id,
		Attributes: map[string]string{"party": party},
		EmittedAt:  time.Now(),
	}
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Emit(ctx context.Context, ev Event) {
	attrs := make([]any, 0, 2+2*len(ev.Attributes))
	attrs = append(attrs, "escrow_id", strconv.FormatInt(ev.EscrowID, 10))
	for k, v := range ev.Attributes {
		attrs = append(attrs, k, v)
	}
	e.Logger.InfoContext(ctx, ev.Type, attrs...)
}

// MultiEmitter fans an event out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, e Event) {
	for _, em := range m {
		em.Emit(ctx, e)
	}
}
