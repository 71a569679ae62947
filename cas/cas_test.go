package cas

import (
	"encoding/hex"
	"testing"
)

func TestNowMs(t *testing.T) {
	if ts := NowMs(); ts < 1704067200000 {
		t.Errorf("NowMs = %d, older than 2024", ts)
	}
}

func TestCanonicalJSON(t *testing.T) {
	type payload struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"flat map", map[string]any{"z": 1, "a": 2, "m": 3}, `{"a":2,"m":3,"z":1}`},
		{"nested map", map[string]any{"z": map[string]any{"b": 1, "a": 2}, "a": 3}, `{"a":3,"z":{"a":2,"b":1}}`},
		{"array of maps", []any{map[string]any{"z": 1, "a": 2}, map[string]any{"b": 3, "a": 4}}, `[{"a":2,"z":1},{"a":4,"b":3}]`},
		{"large integer", map[string]any{"line": 12345678901}, `{"line":12345678901}`},
		{"struct fields", payload{Zeta: "z", Alpha: 1}, `{"alpha":1,"zeta":"z"}`},
		{"node metadata", map[string]any{"level": 2, "recovered": true, "strategy": "skip"}, `{"level":2,"recovered":true,"strategy":"skip"}`},
		{"scalar", "plain", `"plain"`},
		{"empty map", map[string]any{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalJSON(tt.input)
			if err != nil {
				t.Fatalf("CanonicalJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalJSON_Unmarshalable(t *testing.T) {
	if _, err := CanonicalJSON(map[string]any{"ch": make(chan int)}); err == nil {
		t.Error("expected error for a channel value")
	}
}

func TestBlake3Hash(t *testing.T) {
	h := Blake3Hash([]byte("hello"))
	if len(h) != 32 {
		t.Errorf("expected 32-byte hash, got %d", len(h))
	}

	hexStr := Blake3HashHex([]byte("hello"))
	if hexStr != hex.EncodeToString(h) {
		t.Errorf("hex mismatch: %s vs %x", hexStr, h)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("PARAGRAPH", "hello")
	b := ContentHash("PARAGRAPH", "hello")
	if a != b {
		t.Errorf("same input produced different hashes: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	if ContentHash("HEADING", "hello") == a {
		t.Error("kind must participate in the hash")
	}
	if ContentHash("PARAGRAPH", "hello!") == a {
		t.Error("content must participate in the hash")
	}

	// The separator keeps (kind, content) pairs from colliding on concatenation.
	if ContentHash("AB", "C") == ContentHash("A", "BC") {
		t.Error("expected different hashes for shifted boundaries")
	}
}

func TestShortHash(t *testing.T) {
	if got := ShortHash("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("ShortHash = %q", got)
	}
	if got := ShortHash("abc"); got != "abc" {
		t.Errorf("ShortHash = %q", got)
	}
}
