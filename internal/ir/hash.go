package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEntry  = "dhtrecords/entry/v1"
	DomainHeader = "dhtrecords/header/v1"
	DomainAnchor = "dhtrecords/anchor/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryAddress computes the content address of an entry.
// canonical must be the MarshalCanonical form of the payload.
// The entry type participates so equal payloads of different types never collide.
func EntryAddress(entryType string, canonical []byte) (EntryHash, error) {
	var buf []byte
	typ, err := MarshalCanonical(IRString(entryType))
	if err != nil {
		return "", err
	}
	buf = append(buf, `{"entry_type":`...)
	buf = append(buf, typ...)
	buf = append(buf, `,"payload":`...)
	buf = append(buf, canonical...)
	buf = append(buf, '}')
	return EntryHash(hashWithDomain(DomainEntry, buf)), nil
}

// CreateEntryAddress computes the entry hash of a record's first version.
// seq is the create header's logical-clock value; it salts the hash so two
// records created with equal payloads still get distinct identities.
func CreateEntryAddress(entryType string, canonical []byte, seq int64) (EntryHash, error) {
	typ, err := MarshalCanonical(IRString(entryType))
	if err != nil {
		return "", err
	}
	nonce, err := MarshalCanonical(IRInt(seq))
	if err != nil {
		return "", err
	}
	var buf []byte
	buf = append(buf, `{"entry_type":`...)
	buf = append(buf, typ...)
	buf = append(buf, `,"nonce":`...)
	buf = append(buf, nonce...)
	buf = append(buf, `,"payload":`...)
	buf = append(buf, canonical...)
	buf = append(buf, '}')
	return EntryHash(hashWithDomain(DomainEntry, buf)), nil
}

// HeaderAddress computes the revision pointer of a header from every field
// except its own hash.
func HeaderAddress(h Header) (RevisionPointer, error) {
	obj := IRObject{
		"action":     IRString(h.Action),
		"entry_type": IRString(h.EntryType),
		"identity":   IRString(h.Identity),
		"seq":        IRInt(h.Seq),
	}
	if h.EntryHash != "" {
		obj["entry_hash"] = IRString(h.EntryHash)
	}
	if h.Prev != "" {
		obj["prev_header"] = IRString(h.Prev)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("HeaderAddress: %w", err)
	}
	return RevisionPointer(hashWithDomain(DomainHeader, canonical)), nil
}

// AnchorAddress returns the well-known pseudo-identity named name.
// Anchors are link bases only; no entry is ever stored at one.
func AnchorAddress(name string) IdentityAddress {
	return IdentityAddress(hashWithDomain(DomainAnchor, []byte(name)))
}
