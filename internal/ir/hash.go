package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPipeline = "nestc/pipeline/v1"
	DomainArtifact = "nestc/artifact/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PipelineID computes the content-addressed ID of a graph including its
// schedules. It is stable across processes for equal descriptions.
func PipelineID(g *Graph) (string, error) {
	canonical, err := MarshalCanonical(g.Describe())
	if err != nil {
		return "", fmt.Errorf("PipelineID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPipeline, canonical), nil
}

// ArtifactID computes the content-addressed ID of an encoded loop-nest program.
func ArtifactID(encoded []byte) string {
	return hashWithDomain(DomainArtifact, encoded)
}
