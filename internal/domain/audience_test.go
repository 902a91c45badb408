package domain

import (
	"errors"
	"testing"
)

func TestParseAudience(t *testing.T) {
	tests := []struct {
		in      string
		want    Audience
		wantErr bool
	}{
		{"customer", AudienceCustomer, false},
		{"field-engineer", AudienceFieldEngineer, false},
		{"admin", AudienceAdmin, false},
		{"", "", true},
		{"Customer", "", true},
		{"engineer", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAudience(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAudience(%q): expected error", tt.in)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseAudience(%q): error should wrap ErrValidation, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAudience(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAudience(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAudienceSet(t *testing.T) {
	set, err := NewAudienceSet("customer", "field-engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Contains(AudienceCustomer) || !set.Contains(AudienceFieldEngineer) {
		t.Error("set should contain both audiences")
	}
	if set.Contains(AudienceAdmin) {
		t.Error("set should not contain admin")
	}

	if _, err := NewAudienceSet(); err == nil {
		t.Error("empty tag list should be rejected")
	}
	if _, err := NewAudienceSet("customer", "bogus"); err == nil {
		t.Error("unknown tag should be rejected")
	}
}

func TestAudienceSet_SliceDeterministic(t *testing.T) {
	set, err := NewAudienceSet("field-engineer", "admin", "customer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "admin,customer,field-engineer"
	for i := 0; i < 10; i++ {
		if got := set.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}

func TestAudienceSet_Clone(t *testing.T) {
	set, _ := NewAudienceSet("customer")
	c := set.Clone()
	c[AudienceAdmin] = struct{}{}
	if set.Contains(AudienceAdmin) {
		t.Error("mutating the clone must not affect the original")
	}
	if AudienceSet(nil).Clone() != nil {
		t.Error("clone of nil set should be nil")
	}
}
