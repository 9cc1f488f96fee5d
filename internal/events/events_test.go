package events

import (
	"context"
	"testing"
)

func TestPrivateEventsCarryNoAmount(t *testing.T) {
	for _, e := range []Event{
		PrivateEscrowCreated(1, "0xaaaa", "0xbbbb"),
		PrivateEscrowResolved(1, "released"),
		PrivateDisputeRaised(1, "0xaaaa"),
	} {
		if _, ok := e.Attributes["amount"]; ok {
			t.Errorf("%s must not expose an amount", e.Type)
		}
	}
}

func TestEscrowCreatedAttributes(t *testing.T) {
	e := EscrowCreated(7, "0xaaaa", "0xbbbb", "5.000000")
	if e.Type != "EscrowCreated" || e.EscrowID != 7 {
		t.Fatalf("unexpected event header: %+v", e)
	}
	if e.Attributes["amount"] != "5.000000" {
		t.Errorf("amount = %q", e.Attributes["amount"])
	}
}

func TestMultiEmitterFansOut(t *testing.T) {
	var got []string
	rec := emitterFunc(func(_ context.Context, e Event) { got = append(got, e.Type) })
	m := MultiEmitter{rec, rec}

	m.Emit(context.Background(), EscrowResolved(1, "refunded"))
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
}

type emitterFunc func(context.Context, Event)

func (f emitterFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
