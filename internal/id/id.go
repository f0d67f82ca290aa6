// Package id generates prefixed identifiers for catalog rows.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the identifiers handed out by the catalog.
const (
	PrefixLink     = "lnk"
	PrefixCategory = "cat"
	PrefixTag      = "tag"
	PrefixFilter   = "flt"
)

// Generate creates a prefixed unique ID using NanoID,
// e.g. "lnk-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
