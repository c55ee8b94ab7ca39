package token

import (
	"encoding/json"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	a := FromUint64(110)
	security := a.MulDiv(10, 110) // 10% of the main contribution
	if security.String() != "10" {
		t.Fatalf("expected security 10 got %s", security)
	}
	main := a.Sub(security)
	if main.String() != "100" {
		t.Fatalf("expected main 100 got %s", main)
	}
}

func TestAmountSubSaturates(t *testing.T) {
	a := FromUint64(5)
	if got := a.Sub(FromUint64(9)); !got.IsZero() {
		t.Fatalf("expected zero got %s", got)
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, err := Parse("340282366920938463463374607431768211455") // max u128
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Amount
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Fatalf("expected %s got %s", a, back)
	}
}

func TestAmountParseRejectsNegative(t *testing.T) {
	if _, err := Parse("-1"); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
