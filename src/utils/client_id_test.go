package utils

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewClientOrderIDFormat(t *testing.T) {
	before := time.Now().UnixMilli()
	id := NewClientOrderID("AT")
	after := time.Now().UnixMilli()

	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("expected prefix_timestamp_random, got %q", id)
	}
	if parts[0] != "AT" {
		t.Fatalf("expected prefix AT, got %q", parts[0])
	}

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		t.Fatalf("timestamp segment not numeric: %q", parts[1])
	}
	if ts < before || ts > after {
		t.Fatalf("timestamp %d outside [%d, %d]", ts, before, after)
	}

	if len(parts[2]) != 8 {
		t.Fatalf("expected 8-char random suffix, got %q", parts[2])
	}
}

func TestNewClientOrderIDDefaultsPrefix(t *testing.T) {
	id := NewClientOrderID("  ")
	if !strings.HasPrefix(id, "AT_") {
		t.Fatalf("expected default AT prefix, got %q", id)
	}
}

func TestNewClientOrderIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewClientOrderID("AT")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate client order id generated: %q", id)
		}
		seen[id] = struct{}{}
	}
}
