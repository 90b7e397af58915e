package callbacks

import (
	"errors"
	"strings"
	"testing"
)

func TestParseKeepsColonsInValue(t *testing.T) {
	p, err := Parse("cfg:delete:block_keywords:a:b:c")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Payload{Domain: "cfg", Action: "delete", Target: "block_keywords", Value: "a:b:c"}
	if p != want {
		t.Fatalf("got %+v, want %+v", p, want)
	}
	if p.String() != "cfg:delete:block_keywords:a:b:c" {
		t.Fatalf("round trip mismatch: %s", p.String())
	}
}

func TestParseShortPayloads(t *testing.T) {
	p, err := Parse("mod:block:42")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, err := p.TargetInt64(); err != nil || v != 42 || p.Value != "" {
		t.Fatalf("unexpected payload %+v (%v)", p, err)
	}

	for _, raw := range []string{"", "cfg", ":menu", "cfg:"} {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", raw, err)
		}
	}
}

func TestFits(t *testing.T) {
	if !New("cfg", "menu", "root", "").Fits() {
		t.Fatal("short payload should fit")
	}
	if New("cfg", "delete", "block_keywords", strings.Repeat("x", 60)).Fits() {
		t.Fatal("long payload should not fit")
	}
}
