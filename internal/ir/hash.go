package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows future migration.
const (
	DomainChangeSet = "approval/changeset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChangeDigest computes the audit digest of a sandbox's staged content.
// Two sandboxes for the same record with equal pending and stored values
// share a digest regardless of map iteration order or Unicode form.
func ChangeDigest(ref RecordRef, pending, stored Fields) (string, error) {
	obj := IRObject{
		"type":    IRString(ref.Type),
		"id":      IRString(ref.ID),
		"pending": IRObject(pending),
		"stored":  IRObject(stored),
	}
	if pending == nil {
		obj["pending"] = IRObject{}
	}
	if stored == nil {
		obj["stored"] = IRObject{}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ChangeDigest: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainChangeSet, canonical), nil
}

// MustChangeDigest is like ChangeDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustChangeDigest(ref RecordRef, pending, stored Fields) string {
	d, err := ChangeDigest(ref, pending, stored)
	if err != nil {
		panic(err)
	}
	return d
}
