// Package indexes maintains typed, tagged, directed edges between record
// identities.
//
// An Index describes one relationship as seen from its source record. A
// local index is a single edge. A local pair also writes the reciprocal edge
// in the same partition, in the same transaction. A remote pair writes the
// forward edge locally and asks the partition holding the target to write the
// reciprocal; the two writes are independent, so a remote failure leaves a
// one-sided pair that is reported through PairResult and a REMOTE_REQUEST
// error rather than rolled back.
//
// Update applies the difference between two target sets and never rewrites
// edges present in both.
package indexes
