package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old journals.
const (
	DomainPayload = "duet/payload/v1"
	DomainTrace   = "duet/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash identifies a goal payload. An absent payload hashes to "".
func PayloadHash(payload IRObject) (string, error) {
	if payload == nil {
		return "", nil
	}
	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: %w", err)
	}
	return hashWithDomain(DomainPayload, data), nil
}

// TraceDigest identifies a whole canonical trace document, so two runs of
// the same scenario can be compared by a single string.
func TraceDigest(canonical []byte) string {
	return hashWithDomain(DomainTrace, canonical)
}
