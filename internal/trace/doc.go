// Package trace encodes recorded stream timelines as canonical JSON and
// derives content hashes from them.
//
// Canonical JSON (RFC 8785 subset) is the only encoding used for golden files,
// stored runs and digests: object keys are sorted by UTF-16 code units, strings
// are NFC normalized, HTML characters are not escaped, and floats and nulls are
// rejected. Two timelines with the same events always encode to the same bytes.
package trace
