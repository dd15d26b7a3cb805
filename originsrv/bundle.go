package originsrv

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"home.systems/errs"
	"home.systems/revision"
)

// revisionPayload is the wire shape an edge fetches to load a revision: the
// revision's metadata (for its Manifest and Fingerprint) plus the full
// bundle revload.Load parses into a page graph.
type revisionPayload struct {
	Revision *revision.Revision `json:"revision"`
	Bundle   *revision.Bundle   `json:"bundle"`
}

// handleGetRevision serves the bundle and metadata for one revision, the
// call an edge makes after a subscribe notification names a newly promoted
// revision ID.
func (s *Server) handleGetRevision(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	revID := revision.ID(c.Param("revid"))
	ctx := c.Request().Context()

	rev, err := s.revs.Get(ctx, tenantLabel, revID)
	if err != nil {
		return err
	}
	bundle, err := s.revs.GetBundle(ctx, tenantLabel, revID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revisionPayload{Revision: rev, Bundle: bundle})
}

// handleGetCurrentRevision returns the tenant's presently live revision ID,
// the call an edge makes on startup before it has anything to subscribe
// against.
func (s *Server) handleGetCurrentRevision(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	ctx := c.Request().Context()

	id, ok, err := s.revs.Current(ctx, tenantLabel)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindNotFound, "tenant has no current revision")
	}
	return c.JSON(http.StatusOK, map[string]string{"revid": string(id)})
}
