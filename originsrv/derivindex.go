package originsrv

import (
	"fmt"

	boltdb "home.systems/db/bolt"
	"home.systems/errs"
	"home.systems/fingerprint"
	"home.systems/revision"
)

const bucketDerivationIndex = "originsrv.derivation_index"

func newDerivationIndex(db *boltdb.DB) error {
	return db.CreateBucket(bucketDerivationIndex)
}

// derivationSource records what a fingerprint was computed from, so a bare
// GET /derive/<fingerprint> can reproduce the derivation on a miss without
// the caller having to resend the manifest key.
type derivationSource struct {
	Tenant      string             `json:"tenant"`
	ContentPath string             `json:"content_path"`
	Transform   string             `json:"transform"`
	Params      fingerprint.Params `json:"params"`
	SourceSHA256 string            `json:"source_sha256"`
}

func (s *Server) indexDerivation(fp fingerprint.Fingerprint, src derivationSource) error {
	if err := s.db.PutJSON(bucketDerivationIndex, fp.String(), src); err != nil {
		return fmt.Errorf("originsrv: indexing derivation %s: %w", fp, err)
	}
	return nil
}

func (s *Server) lookupDerivation(fp fingerprint.Fingerprint) (derivationSource, error) {
	var src derivationSource
	if err := s.db.GetJSON(bucketDerivationIndex, fp.String(), &src); err != nil {
		return derivationSource{}, errs.Wrap(errs.KindNotFound, "unknown derivation fingerprint", err)
	}
	return src, nil
}

func (s *Server) manifestKeyFor(src derivationSource) revision.ManifestKey {
	return revision.ManifestKey{ContentPath: src.ContentPath, Transform: src.Transform, Params: src.Params}
}
