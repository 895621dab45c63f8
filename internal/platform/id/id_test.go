package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func decodeID(t *testing.T, value string) uuid.UUID {
	t.Helper()

	raw, err := encoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		t.Fatalf("decode %q: %v", value, err)
	}
	parsed, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from %q: %v", value, err)
	}
	return parsed
}

func TestNewIDIsLowerBase32RandomUUID(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("len = %d, want 26", len(value))
	}
	if strings.Trim(value, "abcdefghijklmnopqrstuvwxyz234567") != "" {
		t.Fatalf("id %q has characters outside lower base32", value)
	}

	parsed := decodeID(t, value)
	if parsed.Version() != 4 {
		t.Fatalf("version = %d, want 4", parsed.Version())
	}
	if parsed.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %v, want RFC4122", parsed.Variant())
	}
}

func TestNewIDDoesNotRepeat(t *testing.T) {
	const count = 2000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id %d: %v", i, err)
		}
		if _, dup := seen[value]; dup {
			t.Fatalf("id %q repeated after %d ids", value, i)
		}
		seen[value] = struct{}{}
	}
}
