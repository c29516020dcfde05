package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"Authorization", "Bearer abc", "campaign_id", 7, "x_payment", "0xdead", "dangling"})

	want := []interface{}{"Authorization", "[REDACTED]", "campaign_id", 7, "x_payment", "[REDACTED]", "dangling"}
	if len(out) != len(want) {
		t.Fatalf("len: want=%d got=%d (%v)", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("kv[%d]: want=%v got=%v", i, want[i], out[i])
		}
	}
}

func TestNewDevelopmentLogger(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := log.With("component", "test")
	child.Info("hello", "token", "secret-value")
}
