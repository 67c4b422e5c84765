package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/ingestion"
)

const (
	testRequestID = "550e8400-e29b-41d4-a716-446655440000"
	testSender    = "0x00000000000000000000000000000000000000a1"
)

func payload(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	base := map[string]any{
		"request_id":   testRequestID,
		"sender":       testSender,
		"submitted_at": "2026-01-02T03:04:05Z",
	}
	for k, v := range fields {
		base[k] = v
	}
	data, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseDeposit(t *testing.T) {
	p := ingestion.NewParser(false)
	cmd, err := p.Parse("Deposit", payload(t, map[string]any{"amount": 1_000}))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	d, ok := cmd.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", cmd)
	}
	if d.Amount != 1_000 {
		t.Errorf("amount: got %d, want 1000", d.Amount)
	}
	if d.IdempotencyKey() != testRequestID {
		t.Errorf("request id: got %s", d.IdempotencyKey())
	}
	if d.Caller().Hex() != "0x00000000000000000000000000000000000000A1" {
		t.Errorf("sender: got %s", d.Caller().Hex())
	}
	if !d.Timestamp().Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("submitted_at: got %v", d.Timestamp())
	}
}

func TestParseBuyCoverage(t *testing.T) {
	p := ingestion.NewParser(false)
	cmd, err := p.Parse("BuyCoverage", payload(t, map[string]any{
		"cover_amount":  5_000,
		"duration_days": 30,
	}))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b, ok := cmd.(*event.BuyCoverage)
	if !ok {
		t.Fatalf("expected *event.BuyCoverage, got %T", cmd)
	}
	if b.CoverAmount != 5_000 || b.DurationDays != 30 {
		t.Errorf("unexpected coverage request: %+v", b)
	}
	if b.CommandType() != event.CommandTypeBuyCoverage {
		t.Errorf("command type: got %v", b.CommandType())
	}
}

func TestParseCreateClaim(t *testing.T) {
	p := ingestion.NewParser(false)
	cmd, err := p.Parse("CreateClaim", payload(t, map[string]any{
		"token_id":        7,
		"evidence_uri":    "ipfs://evidence",
		"arbitration_fee": 10,
	}))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	c := cmd.(*event.CreateClaim)
	if c.TokenID != 7 || c.EvidenceURI != "ipfs://evidence" || c.ArbitrationFee != 10 {
		t.Errorf("unexpected claim: %+v", c)
	}
}

func TestParseUnknownType(t *testing.T) {
	p := ingestion.NewParser(true)
	_, err := p.Parse("TradeFill", payload(t, nil))
	if !errors.Is(err, ingestion.ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestParseRejectsRuleFromClients(t *testing.T) {
	p := ingestion.NewParser(true)
	_, err := p.Parse("Rule", payload(t, map[string]any{"dispute_id": 1, "ruling": 1}))
	if !errors.Is(err, ingestion.ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestParseFaucetGating(t *testing.T) {
	data := payload(t, map[string]any{"amount": 100})

	if _, err := ingestion.NewParser(false).Parse("Faucet", data); !errors.Is(err, core.ErrFaucetDisabled) {
		t.Errorf("expected ErrFaucetDisabled, got %v", err)
	}
	cmd, err := ingestion.NewParser(true).Parse("Faucet", data)
	if err != nil {
		t.Fatalf("parse with faucet enabled: %v", err)
	}
	if cmd.(*event.Faucet).Amount != 100 {
		t.Errorf("amount: got %d", cmd.(*event.Faucet).Amount)
	}
}

func TestParseMissingMeta(t *testing.T) {
	p := ingestion.NewParser(false)
	cases := []struct {
		name string
		drop string
	}{
		{"request_id", "request_id"},
		{"sender", "sender"},
		{"submitted_at", "submitted_at"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m map[string]any
			if err := json.Unmarshal(payload(t, map[string]any{"amount": 1}), &m); err != nil {
				t.Fatal(err)
			}
			delete(m, tc.drop)
			data, _ := json.Marshal(m)

			if _, err := p.Parse("Deposit", data); !errors.Is(err, ingestion.ErrInvalidCommand) {
				t.Errorf("expected ErrInvalidCommand without %s, got %v", tc.drop, err)
			}
		})
	}
}

func TestParseMalformedJSON(t *testing.T) {
	p := ingestion.NewParser(false)
	if _, err := p.Parse("Deposit", []byte(`{"amount": "lots"`)); !errors.Is(err, ingestion.ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

// ============================================================================
// Test: Subject routing
// ============================================================================

func TestCommandTypeFromSubject(t *testing.T) {
	cases := map[string]string{
		"coverpool.cmd.Deposit":           "Deposit",
		"coverpool.cmd.BuyCoverage.pool1": "BuyCoverage",
		"coverpool.events.Deposit":        "",
		"coverpool.cmd":                   "",
	}
	for subject, want := range cases {
		if got := ingestion.CommandTypeFromSubject(subject); got != want {
			t.Errorf("CommandTypeFromSubject(%q) = %q, want %q", subject, got, want)
		}
	}
}

func TestEventSubject(t *testing.T) {
	if got := ingestion.EventSubject(event.ClaimPaid{}); got != "coverpool.events.ClaimPaid" {
		t.Errorf("unexpected subject %q", got)
	}
}
