package revload

import (
	"encoding/json"
	"html/template"
	"strings"

	"home.systems/errs"
	"home.systems/revision"
)

const (
	contentPrefix  = "content/"
	templatePrefix = "templates/"
	homeJSONPath   = "home.json"
)

// pageDoc is the on-disk JSON shape of one content/*.json bundle entry. It
// mirrors revision.Page directly; Load takes ContentPath from the entry's
// bundle path, ParentPath from the document's parent_path, and derives each
// page's ChildPaths from the other pages' parent_path values.
type pageDoc struct {
	Route          string             `json:"route"`
	Title          string             `json:"title"`
	PublishedAt    string             `json:"published_at"`
	Tags           []string           `json:"tags"`
	Draft          bool               `json:"draft"`
	Archived       bool               `json:"archived"`
	BodyHTML       string             `json:"body_html"`
	PlainText      string             `json:"plain_text"`
	ReadingTimeMin int                `json:"reading_time_min"`
	TOC            []revision.TOCEntry `json:"toc"`
	TemplateName   string             `json:"template_name"`
	AssetPaths     []string           `json:"asset_paths"`
	LinkedPaths    []string           `json:"linked_paths"`
	ParentPath     string             `json:"parent_path"`
}

// Load parses and validates bundle into a Graph. It returns an
// *errs.Error of kind KindInput describing the first invariant violation
// found; checking stops at that first failure, so later checks do not run
// and no exhaustive report is available.
func Load(bundle *revision.Bundle) (*Graph, error) {
	entries := make(map[string]revision.BundleEntry, len(bundle.Entries))
	for _, e := range bundle.Entries {
		entries[e.Path] = e
	}

	if _, ok := entries[homeJSONPath]; !ok {
		return nil, errs.New(errs.KindInput, "bundle missing home.json")
	}
	var home revision.HomeJSON
	if err := json.Unmarshal(entries[homeJSONPath].Data, &home); err != nil {
		return nil, errs.Wrap(errs.KindInput, "parsing home.json", err)
	}

	g := &Graph{
		Tenant:        bundle.Tenant,
		ByRoute:       make(map[string]*revision.Page),
		ByContentPath: make(map[string]*revision.Page),
		Templates:     make(map[string]*template.Template),
		Assets:        make(map[string]revision.Asset),
	}

	assetHash := make(map[string]string, len(bundle.Trailer))
	for _, t := range bundle.Trailer {
		assetHash[t.ContentPath] = t.SHA256
		g.Assets[t.ContentPath] = revision.Asset{ContentPath: t.ContentPath, SHA256: t.SHA256}
	}

	for _, e := range bundle.Entries {
		if !strings.HasPrefix(e.Path, templatePrefix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(e.Path, templatePrefix), templateExt(e.Path))
		tmpl, err := template.New(name).Parse(string(e.Data))
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "parsing template "+e.Path, err)
		}
		g.Templates[name] = tmpl
	}

	for _, e := range bundle.Entries {
		if !strings.HasPrefix(e.Path, contentPrefix) || !strings.HasSuffix(e.Path, ".json") {
			continue
		}
		contentPath := "/" + strings.TrimSuffix(strings.TrimPrefix(e.Path, contentPrefix), ".json")

		var doc pageDoc
		if err := json.Unmarshal(e.Data, &doc); err != nil {
			return nil, errs.Wrap(errs.KindInput, "parsing page "+e.Path, err)
		}

		if _, exists := g.ByRoute[doc.Route]; exists && doc.Route != "" {
			return nil, errs.New(errs.KindInput, "duplicate route "+doc.Route)
		}

		page := &revision.Page{
			ContentPath:    contentPath,
			Route:          doc.Route,
			Title:          doc.Title,
			Tags:           doc.Tags,
			Draft:          doc.Draft,
			Archived:       doc.Archived,
			BodyHTML:       doc.BodyHTML,
			PlainText:      doc.PlainText,
			ReadingTimeMin: doc.ReadingTimeMin,
			TOC:            doc.TOC,
			TemplateName:   doc.TemplateName,
			AssetPaths:     doc.AssetPaths,
			LinkedPaths:    doc.LinkedPaths,
			ParentPath:     doc.ParentPath,
		}

		g.ByContentPath[contentPath] = page
		if doc.Route != "" {
			g.ByRoute[doc.Route] = page
		}
	}

	// Parent/child links are derived after every page is indexed, so a
	// child appearing before its parent in bundle order still resolves.
	for path, page := range g.ByContentPath {
		if page.ParentPath == "" {
			continue
		}
		parent, ok := g.ByContentPath[page.ParentPath]
		if !ok {
			return nil, errs.New(errs.KindInput, "page "+path+" references missing parent "+page.ParentPath)
		}
		parent.ChildPaths = append(parent.ChildPaths, path)
	}

	if err := validate(g); err != nil {
		return nil, err
	}

	return g, nil
}

// validate runs every invariant spec §4.5 names beyond what Load's parsing
// loop already enforces (route uniqueness, missing parents).
func validate(g *Graph) error {
	for path, page := range g.ByContentPath {
		if page.TemplateName != "" {
			if _, ok := g.Templates[page.TemplateName]; !ok {
				return errs.New(errs.KindInput, "page "+path+" references missing template "+page.TemplateName)
			}
		}

		for _, a := range page.AssetPaths {
			if _, ok := g.Assets[a]; !ok {
				return errs.New(errs.KindInput, "page "+path+" references missing asset "+a)
			}
		}

		for _, link := range page.LinkedPaths {
			_, isPage := g.ByContentPath[link]
			_, isAsset := g.Assets[link]
			if !isPage && !isAsset {
				return errs.New(errs.KindInput, "page "+path+" has a dangling link to "+link)
			}
		}
	}
	return nil
}

func templateExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
