// Package fingerprint implements the canonical encoding of a derivation
// transform and its parameters into a content-derived 256-bit identity.
//
// A fingerprint is SHA-256(transform_id || 0x00 || canonical_params || 0x00
// || sorted_input_hashes). Two invocations that agree on transform,
// parameters, and inputs always agree on the fingerprint — identity is pure
// content, never wall-clock, randomness, or locale.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint is the 256-bit content identity of a derivation. Its hex form
// is the object-store key suffix under derivations/.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Parse decodes a hex-encoded fingerprint as produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("fingerprint: invalid hex: %w", err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("fingerprint: want %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// ParamKind is the closed enumeration of scalar field types a transform's
// parameters may be built from. Forbidding anything else at the type
// boundary is what keeps derivations deterministic: no wall-clock, no
// randomness, no locale-dependent formatting can enter a Params value.
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamString
	ParamBool
)

// Param is one named scalar parameter of a transform invocation.
type Param struct {
	Name string
	Kind ParamKind

	IntValue    int64
	StringValue string
	BoolValue   bool
}

func Int(name string, v int64) Param    { return Param{Name: name, Kind: ParamInt, IntValue: v} }
func Str(name string, v string) Param   { return Param{Name: name, Kind: ParamString, StringValue: v} }
func Bool(name string, v bool) Param    { return Param{Name: name, Kind: ParamBool, BoolValue: v} }

// Params is an unordered set of Param; Canonical sorts by name before
// serializing so that field order never affects the fingerprint.
type Params []Param

// Canonical renders Params in the fixed textual form the fingerprint hashes:
// fields sorted by name, "name=kind:value" joined by "&". Numeric formatting
// is fixed (base-10, no leading zeros, no locale grouping) so the same
// logical value always serializes identically.
func (p Params) Canonical() string {
	sorted := make(Params, len(p))
	copy(sorted, p)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, field := range sorted {
		var value string
		switch field.Kind {
		case ParamInt:
			value = "i:" + strconv.FormatInt(field.IntValue, 10)
		case ParamString:
			value = "s:" + field.StringValue
		case ParamBool:
			value = "b:" + strconv.FormatBool(field.BoolValue)
		}
		parts = append(parts, field.Name+"="+value)
	}
	return strings.Join(parts, "&")
}

// Spec identifies one invocation of a transform: its stable textual id, its
// canonical parameters, and the content hashes of its input assets.
type Spec struct {
	TransformID string
	Params      Params
	InputHashes []string // hex SHA-256 of each input asset, any order
}

// Compute derives the Fingerprint for spec. Input hashes are sorted before
// hashing so that argument order never affects identity.
func Compute(spec Spec) Fingerprint {
	inputs := make([]string, len(spec.InputHashes))
	copy(inputs, spec.InputHashes)
	sort.Strings(inputs)

	h := sha256.New()
	h.Write([]byte(spec.TransformID))
	h.Write([]byte{0})
	h.Write([]byte(spec.Params.Canonical()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(inputs, ",")))

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// Transform describes one permitted transform in the schema. The registry of
// Transforms is the closed enumeration the spec requires: adding a transform
// is a schema change here. The registry has no removal operation.
type Transform struct {
	ID          string
	Description string
	// ParamNames lists the only parameter names this transform accepts;
	// Validate rejects any Params carrying an unknown name.
	ParamNames []string
	// CancelSafe marks transforms whose producer could be cancelled once no
	// waiter remains. derivation.Cache does not read it: every producer runs
	// to completion regardless of this flag.
	CancelSafe bool
}

// Validate reports whether params only names fields declared by t.
func (t Transform) Validate(params Params) error {
	allowed := make(map[string]bool, len(t.ParamNames))
	for _, n := range t.ParamNames {
		allowed[n] = true
	}
	for _, p := range params {
		if !allowed[p.Name] {
			return fmt.Errorf("fingerprint: transform %s does not accept parameter %q", t.ID, p.Name)
		}
	}
	return nil
}

// Registry is the enumeration of transforms a deployment permits.
type Registry struct {
	transforms map[string]Transform
}

// NewRegistry builds a Registry from the given transforms.
func NewRegistry(transforms ...Transform) *Registry {
	r := &Registry{transforms: make(map[string]Transform, len(transforms))}
	for _, t := range transforms {
		r.transforms[t.ID] = t
	}
	return r
}

// Lookup returns the Transform registered under id, if any.
func (r *Registry) Lookup(id string) (Transform, bool) {
	t, ok := r.transforms[id]
	return t, ok
}

// DefaultRegistry enumerates the transforms this deployment of home supports.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Transform{
			ID:          "image.resize.jxl",
			Description: "resize and re-encode to JPEG-XL",
			ParamNames:  []string{"width", "height", "quality"},
			CancelSafe:  true,
		},
		Transform{
			ID:          "image.resize.jpeg",
			Description: "resize and re-encode to baseline JPEG",
			ParamNames:  []string{"width", "height", "quality"},
			CancelSafe:  true,
		},
		Transform{
			ID:          "image.resize.autofill.jpeg",
			Description: "resize to an exact box, padding with the source's corner color",
			ParamNames:  []string{"width", "height"},
			CancelSafe:  true,
		},
		Transform{
			ID:          "video.av1.720p",
			Description: "transcode to AV1 at 720p via ffmpeg",
			ParamNames:  []string{"bitrate_kbps"},
			CancelSafe:  false,
		},
	)
}
