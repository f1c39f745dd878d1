// Package ir provides the identifier and value types shared by every other
// internal package.
//
// ir imports nothing internal. Event and goal identifiers are small
// enumerations with a bounded set type, so "several bits set in one call"
// is expressed as a Set value rather than raw bit arithmetic at call sites.
//
// Key design constraints:
//   - NO float types in payload values - use int64 for numbers
//   - Canonical JSON (sorted keys, NFC strings) for anything that is hashed
//     or written to golden files
package ir
