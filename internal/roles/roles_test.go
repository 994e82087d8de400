package roles

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeTruthTable(t *testing.T) {
	expected := map[Role]map[Role]bool{
		RoleSuperUser:     {RoleSuperUser: true, RoleAdministrator: true, RoleAuthor: true},
		RoleAdministrator: {RoleSuperUser: false, RoleAdministrator: true, RoleAuthor: true},
		RoleAuthor:        {RoleSuperUser: false, RoleAdministrator: false, RoleAuthor: true},
	}
	for actor, row := range expected {
		for required, want := range row {
			assert.Equalf(t, want, Authorize(actor, required), "%s acting as %s", actor, required)
		}
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	for _, r := range All() {
		assert.False(t, Authorize(RoleUnknown, r), "unknown actor must be denied %s", r)
		assert.False(t, Authorize(r, RoleUnknown), "%s must not act as unknown role", r)
		assert.False(t, Authorize(r, Role(42)))
	}
	assert.False(t, Authorize(Role(42), RoleAuthor))
}

func TestHierarchyIsSupersetChain(t *testing.T) {
	all := All()
	for i := 0; i < len(all)-1; i++ {
		higher, lower := all[i], all[i+1]
		for _, r := range Grants(lower) {
			assert.True(t, Authorize(higher, r), "%s must contain every grant of %s", higher, lower)
		}
		assert.Greater(t, len(Grants(higher)), len(Grants(lower)))
		assert.False(t, Authorize(lower, higher), "chain must not be cyclic")
	}
}

func TestManageable(t *testing.T) {
	assert.Equal(t, []Role{RoleAdministrator, RoleAuthor}, Manageable(RoleSuperUser))
	assert.Equal(t, []Role{RoleAuthor}, Manageable(RoleAdministrator))
	assert.Empty(t, Manageable(RoleAuthor))
	assert.Empty(t, Manageable(RoleUnknown))
}

func TestParseRoundTrip(t *testing.T) {
	for _, r := range All() {
		assert.Equal(t, r, Parse(r.String()))
	}
	assert.Equal(t, RoleUnknown, Parse("super_user"))
	assert.Equal(t, RoleUnknown, Parse(""))
	assert.Equal(t, "Super User", RoleSuperUser.DisplayName())
}

func TestRoleJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{Role: RoleAdministrator})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"Administrator"}`, string(data))

	var decoded struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"Author"}`), &decoded))
	assert.Equal(t, RoleAuthor, decoded.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"Root"}`), &decoded))
	_, err = json.Marshal(struct {
		Role Role `json:"role"`
	}{})
	assert.Error(t, err)
}
