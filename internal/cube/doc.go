// Package cube provides the foundational value, record and artifact types
// for cubist, together with their canonical encoding and content hashes.
//
// This package imports nothing internal. Every other internal package
// imports cube; cube imports none of them.
//
// Key design constraints:
//   - NO float types anywhere - measures are int64 so sums are exact and
//     independent of summation order
//   - Null is an explicit value (Null{}); a missing record column is
//     treated exactly like Null
//   - Canonical JSON (MarshalCanonical) is the ONLY serialization used for
//     content hashes and golden files
//   - All content hashes are SHA-256 with domain separation (hash.go)
package cube
