package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

type repoMock map[string]map[string][]string // {tenantID: {role: caps}}

func (m repoMock) QueryRoleCapabilities(_ context.Context, tenantID string) (map[string][]string, error) {
	return m[tenantID], nil
}

func (m repoMock) SetRoleCapabilities(_ context.Context, tenantID, role string, caps []string) error {
	if m[tenantID] == nil {
		m[tenantID] = make(map[string][]string)
	}
	if len(caps) == 0 {
		delete(m[tenantID], role)
		return nil
	}
	m[tenantID][role] = caps
	return nil
}

func TestService_CapabilitiesFor(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repoMock{
		"t1": {user.RoleTeacher: {CapUsersView, CapPoliciesManage}, user.RoleAdminOwner: {CapUsersView}},
	})

	tests := []struct {
		name     string
		tenantID string
		roles    []string
		want     []string
	}{
		{name: "no roles", tenantID: "t1", want: []string{}},
		{name: "platform user without platform role", roles: []string{user.RoleAdmin}, want: []string{}},
		{name: "platform admin", roles: []string{user.RolePlatformAdmin}, want: normalize(AllCapabilities)},
		{name: "student", tenantID: "t2", roles: []string{user.RoleStudent}, want: []string{}},
		{name: "teacher default", tenantID: "t2", roles: []string{user.RoleTeacher}, want: []string{CapUsersView}},
		{name: "teacher override", tenantID: "t1", roles: []string{user.RoleTeacher}, want: []string{CapPoliciesManage, CapUsersView}},
		{
			name: "union", tenantID: "t1", roles: []string{user.RoleTeacher, user.RoleAdmin},
			want: []string{CapPoliciesManage, CapUsersManage, CapUsersView},
		},
		{name: "owner ignores overrides", tenantID: "t1", roles: []string{user.RoleAdminOwner}, want: normalize(AllCapabilities)},
		{name: "unknown role", tenantID: "t1", roles: []string{"lol"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CapabilitiesFor(ctx, tt.tenantID, tt.roles)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_SetRoleCapabilities(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repoMock{})

	err := svc.SetRoleCapabilities(ctx, "t1", user.RoleAdminOwner, []string{CapUsersView})
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, ErrOwnerRole, vErr.Err)

	err = svc.SetRoleCapabilities(ctx, "t1", user.RolePlatformAdmin, []string{CapUsersView})
	vErr, ok = err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, []core.FieldError{{Field: "role", Error: ErrRole.Error()}}, vErr.Fields)

	require.NoError(t, svc.SetRoleCapabilities(ctx, "t1", user.RoleStudent, []string{CapUsersView, CapUsersView}))
	ok, err = svc.HasAny(ctx, "t1", []string{user.RoleStudent}, CapUsersManage, CapUsersView)
	require.NoError(t, err)
	assert.True(t, ok)

	grants, err := svc.Grants(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, grants, len(user.Roles))
	for _, g := range grants {
		if g.Role == user.RoleStudent {
			assert.False(t, g.IsDefault)
			assert.Equal(t, []string{CapUsersView}, g.Capabilities)
		} else {
			assert.True(t, g.IsDefault, g.Role)
		}
	}

	require.NoError(t, svc.ResetRoleCapabilities(ctx, "t1", user.RoleStudent))
	ok, err = svc.HasAny(ctx, "t1", []string{user.RoleStudent}, CapUsersView)
	require.NoError(t, err)
	assert.False(t, ok)
}
