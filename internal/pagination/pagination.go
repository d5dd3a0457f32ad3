// Package pagination turns an ordered list of records into a cursor-delimited
// page with the edges/pageInfo envelope clients expect.
//
// A cursor is the base64url form of a record's identity bytes. It is stable
// for a fixed data set but carries no snapshot: inserting or deleting records
// between fetches can shift what the next page contains.
package pagination

import (
	"encoding/base64"

	"github.com/roach88/dhtrecords/internal/ir"
)

// EmptyCursor is reported as both cursors of an empty page.
const EmptyCursor = "0"

// Cursor derives the cursor of identity.
func Cursor(identity ir.IdentityAddress) string {
	raw, err := identity.Bytes()
	if err != nil {
		raw = []byte(identity)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Request selects a page. A zero Request selects everything.
type Request struct {
	// After is the cursor of the last record of the previous page.
	After string `json:"after,omitempty"`

	// Limit caps the page size; zero means no cap.
	Limit int `json:"limit,omitempty"`
}

// Edge is one record of a page.
type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

// PageInfo describes a page's position in the full list.
type PageInfo struct {
	StartCursor     string `json:"startCursor"`
	EndCursor       string `json:"endCursor"`
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	PageLimit       *int   `json:"pageLimit,omitempty"`
	TotalCount      *int   `json:"totalCount,omitempty"`
}

// Connection is a page of records.
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Paginate cuts the page req selects out of items, which must already be in
// listing order. identity extracts each item's identity address.
//
// An After cursor that matches no item selects from the start.
func Paginate[T any](items []T, identity func(T) ir.IdentityAddress, req Request) Connection[T] {
	cursors := make([]string, len(items))
	for i, item := range items {
		cursors[i] = Cursor(identity(item))
	}

	start := 0
	if req.After != "" {
		for i, c := range cursors {
			if c == req.After {
				start = i + 1
				break
			}
		}
	}
	end := len(items)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}

	total := len(items)
	conn := Connection[T]{
		Edges: make([]Edge[T], 0, end-start),
		PageInfo: PageInfo{
			StartCursor:     EmptyCursor,
			EndCursor:       EmptyCursor,
			HasNextPage:     end < len(items),
			HasPreviousPage: start > 0,
			TotalCount:      &total,
		},
	}
	if req.Limit > 0 {
		limit := req.Limit
		conn.PageInfo.PageLimit = &limit
	}
	for i := start; i < end; i++ {
		conn.Edges = append(conn.Edges, Edge[T]{Node: items[i], Cursor: cursors[i]})
	}
	if len(conn.Edges) > 0 {
		conn.PageInfo.StartCursor = conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return conn
}
