package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNullableUnmarshal(t *testing.T) {
	type payload struct {
		Notes Nullable[string]    `json:"notes"`
		Owner Nullable[uuid.UUID] `json:"owner"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"notes": "rush", "owner": "00000000-0000-0000-0000-000000000001"}`), &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if !got.Notes.Set || got.Notes.Value == nil || *got.Notes.Value != "rush" {
		t.Fatalf("expected notes value, got %+v", got.Notes)
	}
	if got.Owner.Value == nil || got.Owner.Value.String() != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("unexpected owner %+v", got.Owner)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"notes": null}`), &got); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !got.Notes.Set || got.Notes.Value != nil {
		t.Fatalf("expected null to be set but nil, got %+v", got.Notes)
	}
	if got.Owner.Set {
		t.Fatalf("missing field should stay unset, got %+v", got.Owner)
	}

	if err := json.Unmarshal([]byte(`{"owner": "not-a-uuid"}`), &got); err == nil {
		t.Fatal("expected invalid uuid error")
	}
}
