package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Hash is a content digest of a downloaded artifact.
type Hash struct {
	Value     string `json:"value"`
	Algorithm string `json:"algorithm"`
}

// RemoteArtifact is a downloadable archive.
type RemoteArtifact struct {
	URL  string `json:"url"`
	Hash Hash   `json:"hash"`
}

// VCSInfo describes a version control checkout. Revision may be a moving
// reference as configured by the user; ResolvedRevision on a
// RepositoryProvenance never is.
type VCSInfo struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Revision string `json:"revision"`
	Path     string `json:"path"`
}

// Provenance is the exact source location a scan was performed against. It
// is a closed sum type: the only implementations are UnknownProvenance,
// ArtifactProvenance and RepositoryProvenance, so matching sites can handle
// all cases exhaustively.
type Provenance interface {
	provenance()
}

// KnownProvenance is a Provenance that points at an actual source location.
// Only known provenances are eligible for persistence.
type KnownProvenance interface {
	Provenance
	known()
}

// UnknownProvenance means no source location is known. Results with this
// provenance must never be persisted.
type UnknownProvenance struct{}

// ArtifactProvenance identifies a scanned source archive.
type ArtifactProvenance struct {
	Source RemoteArtifact `json:"source"`
}

// RepositoryProvenance identifies a scanned VCS checkout. ResolvedRevision
// is always a concrete revision, never a branch or tag name.
type RepositoryProvenance struct {
	VCS              VCSInfo `json:"vcs"`
	ResolvedRevision string  `json:"resolved_revision"`
}

func (UnknownProvenance) provenance()    {}
func (ArtifactProvenance) provenance()   {}
func (RepositoryProvenance) provenance() {}

func (ArtifactProvenance) known()   {}
func (RepositoryProvenance) known() {}

// stripCredentials removes any userinfo component from a URL so that
// embedded credentials never take part in identity comparison or keys.
func stripCredentials(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

// MatchesProvenance reports whether two provenances refer to the same
// content. Only identity-relevant fields are compared: incidental data such
// as embedded credentials or the VCS sub-path play no part.
func MatchesProvenance(a, b Provenance) bool {
	switch pa := a.(type) {
	case UnknownProvenance:
		_, ok := b.(UnknownProvenance)
		return ok
	case ArtifactProvenance:
		pb, ok := b.(ArtifactProvenance)
		if !ok {
			return false
		}
		return stripCredentials(pa.Source.URL) == stripCredentials(pb.Source.URL) &&
			pa.Source.Hash == pb.Source.Hash
	case RepositoryProvenance:
		pb, ok := b.(RepositoryProvenance)
		if !ok {
			return false
		}
		return pa.VCS.Type == pb.VCS.Type &&
			stripCredentials(pa.VCS.URL) == stripCredentials(pb.VCS.URL) &&
			pa.ResolvedRevision == pb.ResolvedRevision
	}
	return false
}

// ProvenanceKey returns the canonical identity string of a provenance. Two
// provenances have equal keys iff MatchesProvenance holds for them.
func ProvenanceKey(p Provenance) string {
	switch pp := p.(type) {
	case ArtifactProvenance:
		return strings.Join([]string{
			"artifact",
			stripCredentials(pp.Source.URL),
			pp.Source.Hash.Algorithm,
			pp.Source.Hash.Value,
		}, "|")
	case RepositoryProvenance:
		return strings.Join([]string{
			"repository",
			pp.VCS.Type,
			stripCredentials(pp.VCS.URL),
			pp.ResolvedRevision,
		}, "|")
	default:
		return "unknown"
	}
}

// ProvenanceDigest returns a stable hex digest of the provenance identity,
// suitable as a storage key.
func ProvenanceDigest(p KnownProvenance) string {
	sum := sha256.Sum256([]byte(ProvenanceKey(p)))
	return hex.EncodeToString(sum[:])
}

// IsResolved reports whether the repository provenance carries a concrete
// revision. Moving references must be resolved before results can be stored.
func (p RepositoryProvenance) IsResolved() bool {
	return p.ResolvedRevision != ""
}

const (
	provenanceKindUnknown    = "unknown"
	provenanceKindArtifact   = "artifact"
	provenanceKindRepository = "repository"
)

// provenanceEnvelope is the wire form of the Provenance sum type.
type provenanceEnvelope struct {
	Kind             string          `json:"kind"`
	Source           *RemoteArtifact `json:"source,omitempty"`
	VCS              *VCSInfo        `json:"vcs,omitempty"`
	ResolvedRevision string          `json:"resolved_revision,omitempty"`
}

// MarshalProvenance encodes a provenance into its tagged JSON form.
func MarshalProvenance(p Provenance) ([]byte, error) {
	var env provenanceEnvelope
	switch pp := p.(type) {
	case nil, UnknownProvenance:
		env.Kind = provenanceKindUnknown
	case ArtifactProvenance:
		src := pp.Source
		env.Kind = provenanceKindArtifact
		env.Source = &src
	case RepositoryProvenance:
		vcs := pp.VCS
		env.Kind = provenanceKindRepository
		env.VCS = &vcs
		env.ResolvedRevision = pp.ResolvedRevision
	default:
		return nil, fmt.Errorf("unsupported provenance type %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalProvenance decodes the tagged JSON form back into the sum type.
func UnmarshalProvenance(data []byte) (Provenance, error) {
	var env provenanceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case provenanceKindUnknown, "":
		return UnknownProvenance{}, nil
	case provenanceKindArtifact:
		if env.Source == nil {
			return nil, fmt.Errorf("artifact provenance without source")
		}
		return ArtifactProvenance{Source: *env.Source}, nil
	case provenanceKindRepository:
		if env.VCS == nil {
			return nil, fmt.Errorf("repository provenance without vcs info")
		}
		return RepositoryProvenance{VCS: *env.VCS, ResolvedRevision: env.ResolvedRevision}, nil
	}
	return nil, fmt.Errorf("unknown provenance kind %q", env.Kind)
}
