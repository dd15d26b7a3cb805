package originsrv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"home.systems/auth"
	"home.systems/errs"
	"home.systems/fingerprint"
	"home.systems/graph"
	"home.systems/objectstore"
	"home.systems/revision"
)

// deployLine is one newline-delimited request line a deploying client sends:
// either a bundle entry, a trailer record naming an asset's hash, or a
// terminating "done" marker. Responses use the same ndjson shape the spec
// names for progress: {phase, bytes_done, bytes_total, message}.
type deployLine struct {
	Type string `json:"type"` // "entry", "trailer", "done"

	Path       string `json:"path,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`

	ContentPath string `json:"content_path,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
}

type progressEvent struct {
	Phase      string `json:"phase,omitempty"`
	BytesDone  int64  `json:"bytes_done,omitempty"`
	BytesTotal int64  `json:"bytes_total,omitempty"`
	Message    string `json:"message,omitempty"`
	Status     string `json:"status,omitempty"`
	RevID      string `json:"revid,omitempty"`
}

// requireTenantAPIKey validates the X-API-Key header against the tenant
// named by the :tenant path parameter, the same bcrypt comparison the
// credential table uses for passwords.
func (s *Server) requireTenantAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		label := c.Param("tenant")
		t, err := s.tenants.Get(label)
		if err != nil {
			return err
		}
		presented := c.Request().Header.Get("X-API-Key")
		if presented == "" {
			return errs.New(errs.KindUnauthorized, "missing API key")
		}
		if err := auth.ValidateAPIKey(presented, t.APIKeyHash); err != nil {
			return errs.Wrap(errs.KindUnauthorized, "invalid API key", err)
		}
		return next(c)
	}
}

// handleDeploy ingests a bundle streamed as newline-delimited JSON, writing
// every asset with put_if_absent, persisting the manifest and bundle, and
// streaming back progress events per line consumed. It does not promote the
// revision — handlePromote is a separate call.
func (s *Server) handleDeploy(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	ctx := c.Request().Context()

	id, err := revision.NewID(time.Now())
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(resp)
	emit := func(ev progressEvent) {
		_ = encoder.Encode(ev)
		resp.Flush()
	}

	bundle := &revision.Bundle{Tenant: tenantLabel, CreatedAt: time.Now().UTC()}
	manifest := revision.Manifest{
		Derivations: make(map[string]fingerprint.Fingerprint),
		Assets:      make(map[string]revision.Asset),
	}
	trailer := make(map[string]string)  // content-path -> sha256
	pageDocs := make(map[string][]byte) // bundle path -> raw page document, for the DAG check below

	scanner := bufio.NewScanner(c.Request().Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var bytesDone int64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var in deployLine
		if err := json.Unmarshal(line, &in); err != nil {
			emit(progressEvent{Status: "error", Message: "malformed line: " + err.Error()})
			return nil
		}
		bytesDone += int64(len(line))

		switch in.Type {
		case "entry":
			data, err := base64.StdEncoding.DecodeString(in.DataBase64)
			if err != nil {
				emit(progressEvent{Status: "error", Message: "bad base64 for " + in.Path})
				return nil
			}
			if err := s.storeDeployEntry(ctx, in.Path, data, trailer); err != nil {
				emit(progressEvent{Status: "error", Message: err.Error()})
				return nil
			}
			bundle.Entries = append(bundle.Entries, revision.BundleEntry{Path: in.Path, Data: data})
			if isPageDoc(in.Path) {
				pageDocs[in.Path] = data
			}
			emit(progressEvent{Phase: "receiving", BytesDone: bytesDone, Message: "stored " + in.Path})

		case "trailer":
			trailer[in.ContentPath] = in.SHA256
			bundle.Trailer = append(bundle.Trailer, revision.AssetTrailerEntry{ContentPath: in.ContentPath, SHA256: in.SHA256})
			manifest.Assets[in.ContentPath] = revision.Asset{ContentPath: in.ContentPath, SHA256: in.SHA256}

		case "done":
			if err := validateIngestPageDAG(pageDocs); err != nil {
				emit(progressEvent{Status: "error", Message: err.Error()})
				return nil
			}
			rev := &revision.Revision{ID: id, Tenant: tenantLabel, Manifest: manifest}
			if err := s.revs.Submit(ctx, rev); err != nil {
				emit(progressEvent{Status: "error", Message: err.Error()})
				return nil
			}
			if err := s.revs.PutBundle(ctx, tenantLabel, id, bundle); err != nil {
				emit(progressEvent{Status: "error", Message: err.Error()})
				return nil
			}
			emit(progressEvent{Status: "ok", RevID: string(id)})
			return nil

		default:
			emit(progressEvent{Status: "error", Message: "unknown line type " + in.Type})
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		emit(progressEvent{Status: "error", Message: err.Error()})
	}
	return nil
}

// storeDeployEntry persists asset bytes for any bundle entry outside the
// content/templates namespace revload.Load understands; those are page and
// template documents and never stored under assets/.
func (s *Server) storeDeployEntry(ctx context.Context, path string, data []byte, trailer map[string]string) error {
	if isPageOrTemplate(path) {
		return nil
	}
	sha, ok := trailer[path]
	if !ok {
		return fmt.Errorf("originsrv: asset %s has no trailer hash yet (trailer must precede its entry)", path)
	}
	_, err := s.store.PutIfAbsent(ctx, objectstore.AssetKey(sha), bytes.NewReader(data), int64(len(data)), sha)
	return err
}

func isPageOrTemplate(path string) bool {
	return path == "home.json" || strings.HasPrefix(path, "content/") || strings.HasPrefix(path, "templates/")
}

func isPageDoc(path string) bool {
	return strings.HasPrefix(path, "content/") && strings.HasSuffix(path, ".json")
}

type ingestParentDoc struct {
	ParentPath string `json:"parent_path"`
}

// validateIngestPageDAG checks parent/child page references form no cycle
// before the revision is submitted, the same check BuildBundle runs over a
// development working tree. revload.Load assumes an acyclic graph when it
// walks ParentPath/ChildPaths and never validates that itself.
func validateIngestPageDAG(pageDocs map[string][]byte) error {
	nodes := make([]graph.Node, 0, len(pageDocs))
	for path, data := range pageDocs {
		contentPath := "/" + strings.TrimSuffix(strings.TrimPrefix(path, "content/"), ".json")
		var doc ingestParentDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return errs.Wrap(errs.KindInput, "parsing page "+path, err)
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

// handlePromote makes a previously submitted revision current for its
// tenant, failing closed if the manifest references anything not actually
// persisted.
func (s *Server) handlePromote(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	revID := revision.ID(c.Param("revid"))
	if err := s.revs.Promote(c.Request().Context(), tenantLabel, revID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "revid": string(revID)})
}
