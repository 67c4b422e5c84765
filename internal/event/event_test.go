package event_test

import (
	"CoverPool/internal/event"
	"CoverPool/internal/state"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCommandType_RoundTripNames(t *testing.T) {
	for ct := event.CommandTypeDeposit; ct <= event.CommandTypeFaucet; ct++ {
		if got := event.ParseCommandType(ct.String()); got != ct {
			t.Errorf("ParseCommandType(%q) = %v, want %v", ct.String(), got, ct)
		}
	}
	if event.ParseCommandType("Nope") != event.CommandTypeUnknown {
		t.Error("unknown name should map to CommandTypeUnknown")
	}
}

func TestMarshalEvents_PreservesConcreteTypes(t *testing.T) {
	claimant := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	in := []event.PoolEvent{
		event.CoveragePurchased{PoolID: 0, Insured: claimant, CoverAmount: 1_000, DurationDays: 30, Premium: 3, TokenID: 7},
		event.Ruling{DisputeID: 4, Ruling: state.RulingYes},
	}

	data, err := event.MarshalEvents(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := event.UnmarshalEvents(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d events, want 2", len(out))
	}

	cp, ok := out[0].(event.CoveragePurchased)
	if !ok {
		t.Fatalf("first event is %T", out[0])
	}
	if cp.Insured != claimant || cp.TokenID != 7 {
		t.Errorf("decoded %+v", cp)
	}
	if r, ok := out[1].(event.Ruling); !ok || r.Ruling != state.RulingYes {
		t.Errorf("second event decoded as %#v", out[1])
	}
}

func TestUnmarshalEvents_UnknownName(t *testing.T) {
	if _, err := event.UnmarshalEvents([]byte(`[{"name":"Bogus","data":{}}]`)); err == nil {
		t.Error("expected error for unknown event name")
	}
}

func TestDecodeCommand_RoundTrip(t *testing.T) {
	in := &event.BuyCoverage{CoverAmount: 7_500, DurationDays: 30}
	in.Sender = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	payload, err := event.EncodeCommand(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cmd, err := event.DecodeCommand(event.CommandTypeBuyCoverage, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, ok := cmd.(*event.BuyCoverage)
	if !ok {
		t.Fatalf("decoded %T", cmd)
	}
	if out.CoverAmount != 7_500 || out.DurationDays != 30 || out.Caller() != in.Sender {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeCommand_UnknownType(t *testing.T) {
	if _, err := event.DecodeCommand(event.CommandTypeUnknown, []byte(`{}`)); err == nil {
		t.Error("expected error for unknown command type")
	}
}
