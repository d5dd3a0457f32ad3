// Package records stores versioned entries anchored at a stable identity.
//
// A record is a chain of headers in one partition's store. The first header
// fixes the record's IdentityAddress; every create, update and delete appends
// a header and mints a new RevisionPointer. Record[T] pairs both handles with
// the decoded payload, so each domain entity is an EntryDef plus a Go struct.
//
// Updates are optimistic: the caller names the revision it believes is the
// head, and the write fails with REVISION_MISMATCH if another writer got there
// first. Nothing here retries.
//
// Failures are reported as *IntegrityError; classify them with IsNotFound,
// IsRevisionMismatch and friends.
package records
