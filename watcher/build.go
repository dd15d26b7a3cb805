package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"home.systems/errs"
	"home.systems/graph"
	"home.systems/revision"
)

// BuildBundle walks a working tree laid out the way a deploy bundle is
// structured (home.json, templates/, content/*.json, plus asset files
// referenced from content documents) and assembles an in-memory
// revision.Bundle, the same shape handleDeploy builds from a streamed
// ndjson upload. revload.Load then parses it exactly as it would a
// deployed bundle — the watcher never has its own page graph format.
func BuildBundle(root, tenant string) (*revision.Bundle, error) {
	bundle := &revision.Bundle{Tenant: tenant, CreatedAt: time.Now().UTC()}

	var pages []pageRef
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		bundle.Entries = append(bundle.Entries, revision.BundleEntry{Path: rel, Data: data})

		if rel == "home.json" {
			return nil
		}
		if strings.HasPrefix(rel, "templates/") {
			return nil
		}
		if strings.HasPrefix(rel, "content/") && strings.HasSuffix(rel, ".json") {
			pages = append(pages, pageRef{entryPath: rel})
			return nil
		}

		sum := sha256.Sum256(data)
		sha := hex.EncodeToString(sum[:])
		contentPath := "/" + rel
		bundle.Trailer = append(bundle.Trailer, revision.AssetTrailerEntry{ContentPath: contentPath, SHA256: sha})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "walking working tree", err)
	}

	if err := validatePageDAG(bundle, pages); err != nil {
		return nil, err
	}

	return bundle, nil
}

type pageRef struct {
	entryPath string
}

type parentDoc struct {
	ParentPath string `json:"parent_path"`
}

// validatePageDAG checks parent/child page references form no cycle before
// handing the bundle to revload.Load, which assumes an acyclic graph when
// it walks ParentPath/ChildPaths.
func validatePageDAG(bundle *revision.Bundle, pages []pageRef) error {
	byPath := make(map[string][]byte, len(pages))
	for _, e := range bundle.Entries {
		for _, p := range pages {
			if e.Path == p.entryPath {
				byPath[e.Path] = e.Data
			}
		}
	}

	nodes := make([]graph.Node, 0, len(pages))
	for _, p := range pages {
		contentPath := "/" + strings.TrimSuffix(strings.TrimPrefix(p.entryPath, "content/"), ".json")
		var doc parentDoc
		if err := json.Unmarshal(byPath[p.entryPath], &doc); err != nil {
			return errs.Wrap(errs.KindInput, "parsing page "+p.entryPath, err)
		}
		var requires []string
		if doc.ParentPath != "" {
			requires = append(requires, doc.ParentPath)
		}
		nodes = append(nodes, graph.Node{ID: contentPath, Requires: requires})
	}

	if err := graph.ValidateDAG(nodes); err != nil {
		return errs.Wrap(errs.KindInput, "page parent/child graph", err)
	}
	return nil
}
