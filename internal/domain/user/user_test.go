package user

import (
	"errors"
	"testing"

	"fleet-realtime/internal/general/apperr"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{" Dispatcher ", RoleDispatcher, false},
		{"MECHANIC", RoleMechanic, false},
		{"driver", RoleDriver, false},
		{"manager", RoleManager, false},
		{"passenger", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsDispatch(t *testing.T) {
	allowed := map[Role]bool{
		RoleAdmin:      true,
		RoleManager:    true,
		RoleDispatcher: true,
		RoleDriver:     false,
		RoleMechanic:   false,
	}
	for role, want := range allowed {
		if got := role.IsDispatch(); got != want {
			t.Errorf("%s.IsDispatch() = %v, want %v", role, got, want)
		}
	}
}

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity("  u1 ", " Ann ", RoleManager)
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	if id.ID != "u1" || id.Name != "Ann" {
		t.Errorf("NewIdentity() = %+v, want trimmed fields", id)
	}

	if _, err := NewIdentity("", "x", RoleAdmin); !errors.Is(err, ErrMissingUserID) {
		t.Errorf("empty id error = %v, want ErrMissingUserID", err)
	}
	if _, err := NewIdentity("u2", "x", Role("root")); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad role error = %v, want validation kind", err)
	}
	if got := (Identity{ID: "u3"}).DisplayName(); got != "u3" {
		t.Errorf("DisplayName() = %q, want %q", got, "u3")
	}
}
