// Package ir provides the address model and canonical value representation
// shared by every other dhtrecords package.
//
// ir imports nothing internal. It defines:
//   - IdentityAddress, RevisionPointer and EntryHash, the three handles of the
//     content-addressed key space
//   - Header, Link, Grant and Claim, the rows a partition persists
//   - IRValue, a constrained JSON value model (no floats, no nulls) used for
//     RFC 8785 canonical encoding and hashing
//   - Maybe, the tri-state optional used by request payloads
//
// All content addresses are SHA-256 over domain-separated canonical JSON, so
// identical inputs hash identically in every partition.
package ir
