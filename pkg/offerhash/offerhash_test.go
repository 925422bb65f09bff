package offerhash

import (
	"strings"
	"testing"
)

func TestSumStable(t *testing.T) {
	type offer struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	h1, b1, err := Sum(offer{Amount: 10000, Currency: "USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, _, err := Sum(offer{Amount: 10000, Currency: "USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("digest not stable: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") || len(h1) != len("sha256:")+64 {
		t.Fatalf("unexpected digest shape: %s", h1)
	}
	if len(b1) == 0 {
		t.Fatal("expected canonical bytes")
	}

	h3, _, err := Sum(offer{Amount: 10001, Currency: "USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h3 == h1 {
		t.Fatal("different offers must not collide")
	}
}

func TestSumUnmarshalable(t *testing.T) {
	if _, _, err := Sum(func() {}); err == nil {
		t.Fatal("expected error for unmarshalable value")
	}
}
