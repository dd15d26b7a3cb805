package edgesrv

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"home.systems/errs"
	"home.systems/objectstore"
	"home.systems/revload"
)

// normalizeHost canonicalizes a request's Host header into the tenant
// label an edge serves it under: lowercase, strip a port, tolerate a
// trailing dot. One tenant label corresponds to exactly one public
// hostname, so no separate host-to-tenant table is needed at the edge —
// the origin's tenant registry already governs which labels exist.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// resolveTenant returns the tenantState for the request's host, loading its
// current revision and starting its subscription goroutine on first sight
// of that host.
func (s *Server) resolveTenant(c echo.Context) (*tenantState, error) {
	host := normalizeHost(c.Request().Host)
	if t, ok := s.tenants.get(host); ok {
		return t, nil
	}

	t, created := s.tenants.getOrCreate(host)
	if !created {
		return t, nil
	}

	ctx := c.Request().Context()
	id, err := s.origin.currentRevisionID(ctx, host)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "no tenant serves host "+host, err)
	}
	if err := s.loadAndSwap(ctx, t, id); err != nil {
		return nil, err
	}
	go s.followPromotions(t)
	return t, nil
}

// handlePage serves the page at the request path against the host's
// currently live revision, per §4.8's atomic-swap semantics: the live
// pointer is read exactly once at the top of the handler.
func (s *Server) handlePage(c echo.Context) error {
	t, err := s.resolveTenant(c)
	if err != nil {
		return err
	}
	rev := t.live.Load()
	if rev == nil {
		return errs.New(errs.KindNotFound, "tenant has no loaded revision")
	}

	route := c.Request().URL.Path
	page, ok := rev.graph.Page(route, false)
	if !ok {
		return errs.New(errs.KindNotFound, "no page at "+route)
	}

	tmpl, ok := rev.graph.Templates[page.TemplateName]
	if !ok {
		return errs.New(errs.KindNotFound, "page references missing template "+page.TemplateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return errs.Wrap(errs.KindInternal, "rendering page "+route, err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// handleAsset serves an asset's untransformed bytes straight from object
// storage against the live revision's manifest. Transformed variants go
// through handleDerivation instead, addressed by fingerprint rather than
// content-path. Reading directly from s.store (rather than proxying
// through the origin) is the "direct bucket read access" fast path the
// object store interface names for edges that have it configured.
func (s *Server) handleAsset(c echo.Context) error {
	t, err := s.resolveTenant(c)
	if err != nil {
		return err
	}
	rev := t.live.Load()
	if rev == nil {
		return errs.New(errs.KindNotFound, "tenant has no loaded revision")
	}

	path := c.Param("*")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	asset, ok := rev.graph.Assets[path]
	if !ok {
		return errs.New(errs.KindNotFound, "no asset at "+path)
	}

	body, _, err := s.store.Get(c.Request().Context(), objectstore.AssetKey(asset.SHA256))
	if err != nil {
		return errs.Wrap(errs.KindInternal, "fetching asset "+path, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "reading asset "+path, err)
	}
	return c.Blob(http.StatusOK, asset.ContentType, data)
}

// warmupLimit bounds how many derivations a single revision swap prefetches,
// since a manifest can name far more variants than are worth eagerly
// fetching on every swap.
const warmupLimit = 32

// warmup prefetches up to warmupLimit derivations from the just-loaded
// revision's manifest, per §4.8's transient-smoothing note. Fetches run
// with bounded concurrency (cfg.Cache.WarmupConcurrency) so a revision
// swap never stampedes the origin; failures are swallowed, since warmup is
// an optimization and the next real request will fetch on demand anyway.
func (s *Server) warmup(ctx context.Context, t *tenantState, graph *revload.Graph) {
	rev := t.live.Load()
	if rev == nil {
		return
	}

	n := s.cfg.Cache.WarmupConcurrency
	if n <= 0 {
		n = 1
	}
	sem := make(chan struct{}, n)
	var wg sync.WaitGroup

	count := 0
	for _, fp := range rev.manifest.Derivations {
		if count >= warmupLimit {
			break
		}
		count++
		fp := fp
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = s.derivations.Resolve(ctx, fp.String())
		}()
	}
	wg.Wait()
}
