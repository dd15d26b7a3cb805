// Package tenant implements the origin's tenant registry and credential
// table: the local bookkeeping the object store is deliberately bad at
// (listing, conditional updates of small records). Both live in the shared
// bbolt database the mom command opens; the object store holds blobs, and
// revstore keeps the per-tenant CURRENT pointer in the same bbolt database.
package tenant

import (
	"fmt"
	"strings"
	"time"

	boltdb "home.systems/db/bolt"
	"home.systems/errs"
	"home.systems/revision"
)

const (
	bucketTenants     = "tenant.registry"
	bucketCredentials = "tenant.credentials"
)

// Registry stores Tenant and Credential records in bbolt.
type Registry struct {
	db *boltdb.DB
}

// Open opens (creating if necessary) the tenant registry over db. Callers
// share one *boltdb.DB across Registry and revstore.Store.
func Open(db *boltdb.DB) (*Registry, error) {
	if err := db.CreateBucket(bucketTenants); err != nil {
		return nil, err
	}
	if err := db.CreateBucket(bucketCredentials); err != nil {
		return nil, err
	}
	return &Registry{db: db}, nil
}

// normalizeLabel lowercases a tenant label; labels are DNS-safe and
// case-insensitive host lookup must agree with the registry's own casing.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Create registers a new tenant with the given API key hash. It refuses to
// overwrite an existing label — tenants are never silently replaced.
func (r *Registry) Create(label, apiKeyHash string) (revision.Tenant, error) {
	label = normalizeLabel(label)
	if label == "" {
		return revision.Tenant{}, errs.New(errs.KindInput, "tenant label must not be empty")
	}

	var existing revision.Tenant
	if err := r.db.GetJSON(bucketTenants, label, &existing); err == nil {
		return revision.Tenant{}, errs.New(errs.KindConflict, fmt.Sprintf("tenant %q already exists", label))
	}

	t := revision.Tenant{
		Label:      label,
		CreatedAt:  time.Now().UTC(),
		APIKeyHash: apiKeyHash,
	}
	if err := r.db.PutJSON(bucketTenants, label, t); err != nil {
		return revision.Tenant{}, errs.Wrap(errs.KindInternal, "storing tenant", err)
	}
	return t, nil
}

// Get looks up a tenant by label (case-insensitive, as resolved from a
// request host by the edge).
func (r *Registry) Get(label string) (revision.Tenant, error) {
	var t revision.Tenant
	if err := r.db.GetJSON(bucketTenants, normalizeLabel(label), &t); err != nil {
		return revision.Tenant{}, errs.Wrap(errs.KindNotFound, fmt.Sprintf("tenant %q not found", label), err)
	}
	return t, nil
}

// List returns every registered tenant, for the edge's "unknown host"
// development-mode listing and for origin admin tooling.
func (r *Registry) List() ([]revision.Tenant, error) {
	var tenants []revision.Tenant
	err := r.db.ForEachJSON(bucketTenants,
		func(key string, value interface{}) error {
			tenants = append(tenants, *value.(*revision.Tenant))
			return nil
		},
		func() interface{} { return &revision.Tenant{} },
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "listing tenants", err)
	}
	return tenants, nil
}

// RotateAPIKey replaces a tenant's stored API key hash.
func (r *Registry) RotateAPIKey(label, newHash string) (revision.Tenant, error) {
	t, err := r.Get(label)
	if err != nil {
		return revision.Tenant{}, err
	}
	t.APIKeyHash = newHash
	if err := r.db.PutJSON(bucketTenants, t.Label, t); err != nil {
		return revision.Tenant{}, errs.Wrap(errs.KindInternal, "rotating api key", err)
	}
	return t, nil
}

// EnableIdentityProvider adds provider to a tenant's enabled list, if not
// already present.
func (r *Registry) EnableIdentityProvider(label, provider string) (revision.Tenant, error) {
	t, err := r.Get(label)
	if err != nil {
		return revision.Tenant{}, err
	}
	for _, p := range t.IdentityProviders {
		if p == provider {
			return t, nil
		}
	}
	t.IdentityProviders = append(t.IdentityProviders, provider)
	if err := r.db.PutJSON(bucketTenants, t.Label, t); err != nil {
		return revision.Tenant{}, errs.Wrap(errs.KindInternal, "enabling identity provider", err)
	}
	return t, nil
}

// UpsertCredential creates or updates a credential record keyed by
// (tenant, provider, subject).
func (r *Registry) UpsertCredential(c revision.Credential) error {
	now := time.Now().UTC()
	existing, err := r.GetCredential(c.Tenant, c.Provider, c.Subject)
	if err == nil {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	if err := r.db.PutJSON(bucketCredentials, c.CredentialKey(), c); err != nil {
		return errs.Wrap(errs.KindInternal, "storing credential", err)
	}
	return nil
}

// GetCredential looks up a credential by its composite key.
func (r *Registry) GetCredential(tenant, provider, subject string) (revision.Credential, error) {
	key := (revision.Credential{Tenant: tenant, Provider: provider, Subject: subject}).CredentialKey()
	var c revision.Credential
	if err := r.db.GetJSON(bucketCredentials, key, &c); err != nil {
		return revision.Credential{}, errs.Wrap(errs.KindNotFound, "credential not found", err)
	}
	return c, nil
}
