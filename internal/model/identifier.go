package model

import (
	"net/url"
	"strings"
)

// Identifier pins down a package by its ecosystem coordinates. It is the
// primary lookup key for package-keyed storage backends.
type Identifier struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

func (id Identifier) String() string {
	var sb strings.Builder
	sb.WriteString(id.Type)
	sb.WriteString(":")
	if id.Namespace != "" {
		sb.WriteString(id.Namespace)
		sb.WriteString("/")
	}
	sb.WriteString(id.Name)
	sb.WriteString("@")
	sb.WriteString(id.Version)
	return sb.String()
}

// Coordinates returns a path-safe form of the identifier, usable as a file
// path segment or object-storage key prefix.
func (id Identifier) Coordinates() string {
	parts := []string{id.Type, id.Namespace, id.Name, id.Version}
	for i, p := range parts {
		if p == "" {
			p = "_"
		}
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Package carries an identifier together with the source locations the
// analysis phase resolved for it. The cache engine uses the expected
// provenance to reject stored results computed from a different source
// published under the same version string.
type Package struct {
	ID             Identifier     `json:"id"`
	SourceArtifact RemoteArtifact `json:"source_artifact"`
	VCS            VCSInfo        `json:"vcs"`
}

// ExpectedProvenance derives the source location a fresh scan of this
// package would inspect. Repository information wins over an artifact when
// both are present, mirroring how the download phase picks a source.
func (p Package) ExpectedProvenance() Provenance {
	if p.VCS.URL != "" {
		return RepositoryProvenance{VCS: p.VCS, ResolvedRevision: p.VCS.Revision}
	}
	if p.SourceArtifact.URL != "" {
		return ArtifactProvenance{Source: p.SourceArtifact}
	}
	return UnknownProvenance{}
}
