package originsrv

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"home.systems/errs"
	"home.systems/fingerprint"
	"home.systems/revision"
)

// deriveRequest names one (content-path, transform, params) triple to
// resolve against a tenant's revision manifest. Issued by the deploying
// client (or an operator) once it knows which derivations a revision's
// pages actually reference.
type deriveRequest struct {
	ContentPath string             `json:"content_path"`
	Transform   string             `json:"transform"`
	Params      fingerprint.Params `json:"params"`
}

// handleRequestDerivation resolves (and, on first request, produces) the
// derivation named by body, indexing its fingerprint so a later bare
// GET /derive/<fingerprint> can find its way back to the source asset.
func (s *Server) handleRequestDerivation(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	revID := revision.ID(c.Param("revid"))
	ctx := c.Request().Context()

	var req deriveRequest
	if err := c.Bind(&req); err != nil {
		return errs.Wrap(errs.KindInput, "malformed derivation request", err)
	}

	rev, err := s.revs.Get(ctx, tenantLabel, revID)
	if err != nil {
		return err
	}
	asset, ok := rev.Manifest.Assets[req.ContentPath]
	if !ok {
		return errs.New(errs.KindNotFound, "no such asset in manifest: "+req.ContentPath)
	}

	key := revision.ManifestKey{ContentPath: req.ContentPath, Transform: req.Transform, Params: req.Params}
	data, contentType, err := s.dispatch.Resolve(ctx, key, asset)
	if err != nil {
		return err
	}

	fp := fingerprint.Compute(fingerprint.Spec{
		TransformID: req.Transform,
		Params:      req.Params,
		InputHashes: []string{asset.SHA256},
	})
	if err := s.indexDerivation(fp, derivationSource{
		Tenant: tenantLabel, ContentPath: req.ContentPath, Transform: req.Transform,
		Params: req.Params, SourceSHA256: asset.SHA256,
	}); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"fingerprint":  fp.String(),
		"content_type": contentType,
		"size":         len(data),
	})
}

// handleDerive is the public derivation proxy: GET /derive/<fingerprint>
// streams the derivation's bytes, computing it via the derivation cache if
// it is not already persisted. The edge calls this on a local cache miss.
func (s *Server) handleDerive(c echo.Context) error {
	ctx := c.Request().Context()

	fp, err := fingerprint.Parse(c.Param("fingerprint"))
	if err != nil {
		return errs.Wrap(errs.KindInput, "malformed fingerprint", err)
	}

	src, err := s.lookupDerivation(fp)
	if err != nil {
		return err
	}
	rev, ok, err := s.revs.Current(ctx, src.Tenant)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindNotFound, "tenant has no current revision")
	}
	current, err := s.revs.Get(ctx, src.Tenant, rev)
	if err != nil {
		return err
	}
	asset, ok := current.Manifest.Assets[src.ContentPath]
	if !ok {
		return errs.New(errs.KindNotFound, "source asset no longer in current manifest")
	}

	key := s.manifestKeyFor(src)
	data, contentType, err := s.dispatch.Resolve(ctx, key, asset)
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, contentType, data)
}
