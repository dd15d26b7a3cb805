package tenant

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	boltdb "home.systems/db/bolt"
	"home.systems/errs"
	"home.systems/revision"
)

func newTestRegistry(t *testing.T) *Registry {
	db, err := boltdb.Open(filepath.Join(t.TempDir(), "tenant.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := Open(db)
	require.NoError(t, err)
	return reg
}

func TestCreateAndGetTenant(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.Create("Acme", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "acme", created.Label)

	got, err := reg.Get("ACME")
	require.NoError(t, err)
	require.Equal(t, created, got)
}

func TestCreateRejectsDuplicateLabel(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create("acme", "hash-1")
	require.NoError(t, err)

	_, err = reg.Create("acme", "hash-2")
	require.ErrorAs(t, err, new(*errs.Error))
	require.True(t, errs.Is(err, errs.KindConflict))
}

func TestRotateAPIKey(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create("acme", "hash-1")
	require.NoError(t, err)

	updated, err := reg.RotateAPIKey("acme", "hash-2")
	require.NoError(t, err)
	require.Equal(t, "hash-2", updated.APIKeyHash)
}

func TestEnableIdentityProviderIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create("acme", "hash-1")
	require.NoError(t, err)

	t1, err := reg.EnableIdentityProvider("acme", "github")
	require.NoError(t, err)
	require.Equal(t, []string{"github"}, t1.IdentityProviders)

	t2, err := reg.EnableIdentityProvider("acme", "github")
	require.NoError(t, err)
	require.Equal(t, []string{"github"}, t2.IdentityProviders)
}

func TestUpsertAndGetCredential(t *testing.T) {
	reg := newTestRegistry(t)

	cred := revision.Credential{Tenant: "acme", Provider: "github", Subject: "u-1", DisplayName: "Ada"}
	require.NoError(t, reg.UpsertCredential(cred))

	got, err := reg.GetCredential("acme", "github", "u-1")
	require.NoError(t, err)
	require.Equal(t, "Ada", got.DisplayName)
	require.False(t, got.CreatedAt.IsZero())

	cred.DisplayName = "Ada Lovelace"
	require.NoError(t, reg.UpsertCredential(cred))

	updated, err := reg.GetCredential("acme", "github", "u-1")
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", updated.DisplayName)
	require.Equal(t, got.CreatedAt, updated.CreatedAt)
}
