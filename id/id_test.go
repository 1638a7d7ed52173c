package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fezwho/docintel/id"
)

func TestNewHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() id.ID
		prefix id.Prefix
	}{
		{"task", id.NewTaskID, id.PrefixTask},
		{"slot", id.NewSlotID, id.PrefixSlot},
		{"dead", id.NewDeadID, id.PrefixDead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if got.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", got.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
				t.Errorf("String() = %q, want prefix %q", got.String(), tt.prefix)
			}
			if got.IsNil() {
				t.Error("new ID should not be nil")
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewTaskID()

	parsed, err := id.ParseTaskID(orig.String())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	slotID := id.NewSlotID()

	if _, err := id.ParseTaskID(slotID.String()); err == nil {
		t.Error("expected error parsing slot ID as task ID")
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestNilID(t *testing.T) {
	var zero id.ID

	if !zero.IsNil() {
		t.Error("zero value should be nil")
	}
	if zero.String() != "" {
		t.Errorf("nil String() = %q, want empty", zero.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewTaskID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var got id.ID
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", got.String(), orig.String())
	}
}
