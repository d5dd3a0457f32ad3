package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/dhtrecords/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord appends a create header for payload under entry type "thing".
func createTestRecord(t *testing.T, s *Store, payload string) ir.Header {
	t.Helper()
	h, err := s.AppendCreate(context.Background(), "thing", content(payload), "", "")
	if err != nil {
		t.Fatalf("AppendCreate() failed: %v", err)
	}
	return h
}

// content wraps an already-canonical payload.
func content(payload string) Content {
	return Content{Canonical: []byte(payload), Raw: []byte(payload)}
}

func testAddr(n byte) ir.IdentityAddress {
	b := make([]byte, ir.AddressLen)
	for i := range b {
		b[i] = '0'
	}
	b[0] = 'a' + n
	return ir.IdentityAddress(b)
}
