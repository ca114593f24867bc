package itf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix allows the encoding to change without collisions.
const (
	DomainTrace = "conform/trace/v1"
	DomainState = "conform/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint identifies a trace by its canonical content.
// Two traces with the same steps have the same fingerprint regardless of
// key order, set order or whitespace in the source file.
func Fingerprint(states []Record) (string, error) {
	list := make(List, len(states))
	for i, s := range states {
		list[i] = s
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// StateHash identifies a single value, typically one step's state.
func StateHash(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when the value is known to be valid.
func MustStateHash(v Value) string {
	h, err := StateHash(v)
	if err != nil {
		panic(err)
	}
	return h
}
