// Package revload parses a revision.Bundle into the read-only, in-memory
// structure spec §4.5 calls the page graph: routes resolved, templates
// compiled, every internal reference checked. Load is a pure function of
// the bundle bytes — its output, a *Graph, is shared freely by concurrent
// request handlers without further synchronization, since nothing in it is
// ever mutated after Load returns.
package revload

import (
	"html/template"

	"home.systems/revision"
)

// Graph is a fully loaded, validated revision: every lookup a request
// handler needs, with no further I/O or parsing required to serve it.
type Graph struct {
	Tenant string

	// ByRoute indexes public and draft pages by their route. Draft pages
	// are present here (for authenticated preview) but excluded from
	// PublicRoutes.
	ByRoute map[string]*revision.Page
	// ByContentPath indexes every page by its source content-path,
	// regardless of route or draft status.
	ByContentPath map[string]*revision.Page

	// Templates holds one compiled template set per TemplateName appearing
	// in any page.
	Templates map[string]*template.Template

	// Assets maps content-path to the asset record a page's AssetPaths
	// reference.
	Assets map[string]revision.Asset

	// Manifest is the revision's derivation manifest. Load does not set it
	// and leaves the zero value; edgesrv keeps the manifest it fetched
	// alongside the graph in its liveRevision instead.
	Manifest revision.Manifest
}

// PublicRoutes returns the routes of every non-draft, non-archived page —
// the set a sitemap or index page would enumerate.
func (g *Graph) PublicRoutes() []string {
	routes := make([]string, 0, len(g.ByRoute))
	for route, p := range g.ByRoute {
		if p.Draft || p.Archived {
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// Page looks up a page by route. ok is false for an unknown route, or for
// a draft route when includeDrafts is false (the preview-vs-public split
// from spec §4.5).
func (g *Graph) Page(route string, includeDrafts bool) (*revision.Page, bool) {
	p, ok := g.ByRoute[route]
	if !ok {
		return nil, false
	}
	if p.Draft && !includeDrafts {
		return nil, false
	}
	return p, true
}
