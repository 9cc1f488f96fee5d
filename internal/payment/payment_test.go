package payment

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cinchpay/cinch/internal/ledger"
	"github.com/cinchpay/cinch/internal/token"
)

const vault = "0x00000000000000000000000000000000000c1c40"

func newTestAdapter(t *testing.T, bridgeEnabled bool) (*Adapter, *ledger.Ledger, *token.MemoryBridge) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	bridge := token.NewMemoryBridge(bridgeEnabled)
	return NewAdapter(token.NewLedgerToken(l, vault), bridge), l, bridge
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Payment
		ok   bool
	}{
		{"plain", Plain("1.000000"), true},
		{"confidential", Confidential("enc_abc"), true},
		{"plain without amount", Payment{Kind: KindPlain}, false},
		{"confidential without handle", Payment{Kind: KindConfidential}, false},
		{"both set", Payment{Kind: KindPlain, Amount: "1", Handle: "enc_x"}, false},
		{"no kind", Payment{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestPullAndPayoutPlain(t *testing.T) {
	a, l, _ := newTestAdapter(t, false)
	ctx := context.Background()

	l.Credit(ctx, "0xAAAA", "10.000000", "deposit")
	p := Plain("4.000000")

	if err := a.Pull(ctx, "0xAAAA", p, "escrow:1"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if err := a.Payout(ctx, "0xBBBB", p, "escrow:1"); err != nil {
		t.Fatalf("Payout: %v", err)
	}

	got, _ := l.Balance(ctx, "0xbbbb")
	if got.Available != "4.000000" {
		t.Errorf("recipient balance = %q, want 4.000000", got.Available)
	}
}

func TestPullConfidentialWithoutBridge(t *testing.T) {
	a, _, _ := newTestAdapter(t, false)
	err := a.Pull(context.Background(), "0xAAAA", Confidential("enc_x"), "")
	if err != ErrPrivacyNotAvailable {
		t.Errorf("Pull = %v, want ErrPrivacyNotAvailable", err)
	}
}

func TestPullAndPayoutConfidential(t *testing.T) {
	a, _, bridge := newTestAdapter(t, true)
	ctx := context.Background()

	handle := bridge.Issue("0xAAAA")
	p := Confidential(handle)

	if err := a.Pull(ctx, "0xAAAA", p, "escrow:1"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if err := a.Payout(ctx, "0xBBBB", p, "escrow:1"); err != nil {
		t.Fatalf("Payout: %v", err)
	}
	holder, _ := bridge.Holder(handle)
	if holder != "0xbbbb" {
		t.Errorf("holder = %q, want 0xbbbb", holder)
	}
}

func TestConfidentialJSONHidesAmountAndHandle(t *testing.T) {
	b, err := json.Marshal(Confidential("enc_secret"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "enc_secret") || strings.Contains(s, "amount") {
		t.Errorf("confidential payment leaked data: %s", s)
	}
	if !strings.Contains(s, `"mode":"confidential"`) {
		t.Errorf("mode missing: %s", s)
	}
}

func TestPlainJSON(t *testing.T) {
	b, err := json.Marshal(Plain("2.500000"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"mode":"plain","amount":"2.500000"}` {
		t.Errorf("plain payment JSON = %s", b)
	}
}
