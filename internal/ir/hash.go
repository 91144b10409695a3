package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
const (
	DomainModel = "eca/model/v" + IRVersion
	DomainIndex = "eca/index/v" + IRVersion
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the domain-separated hash of v's canonical JSON.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ModelHash identifies a model's content. Two models with the same hash
// compile to the same graph, so it is the compile cache key.
func ModelHash(content Map) (string, error) {
	return ContentHash(DomainModel, content)
}

// IndexDigest summarizes an ordered list of index entries. Order matters:
// two indexes with the same entries in a different order have different digests.
func IndexDigest(entries []IndexEntry) (string, error) {
	list := make(List, len(entries))
	for i, e := range entries {
		list[i] = Map{
			"pattern":  String(e.Pattern),
			"model_id": String(e.ModelID),
			"node_id":  String(e.NodeID),
			"priority": Int(e.Priority),
		}
	}
	return ContentHash(DomainIndex, list)
}

// MustModelHash is like ModelHash but panics on error.
// Use only in tests or when the content is known to be valid.
func MustModelHash(content Map) string {
	h, err := ModelHash(content)
	if err != nil {
		panic(err)
	}
	return h
}
