package auth

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermDeviceRead, true},
		{RoleViewer, PermDecoderOperate, false},
		{RoleOperator, PermDecoderOperate, true},
		{RoleOperator, PermTaskRun, false},
		{RoleOperator, PermDeviceManage, false},
		{RoleMaintainer, PermTaskRun, true},
		{RoleMaintainer, PermDeviceManage, true},
		{Role("root"), PermDeviceRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestRolesAreCumulative(t *testing.T) {
	for i := 1; i < len(ValidRoles); i++ {
		for _, p := range rolePermissions[ValidRoles[i-1]] {
			if !HasPermission(ValidRoles[i], p) {
				t.Errorf("%s lacks %s granted to %s", ValidRoles[i], p, ValidRoles[i-1])
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range ValidRoles {
		got, err := ParseRole(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseRole("admin"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(admin) error = %v", err)
	}
}
