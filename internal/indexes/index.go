package indexes

import (
	"fmt"

	"github.com/roach88/dhtrecords/internal/ir"
)

// Relation is a link type and tag.
type Relation struct {
	Type string `json:"type"`
	Tag  string `json:"tag,omitempty"`
}

func (r Relation) String() string {
	if r.Tag == "" {
		return r.Type
	}
	return r.Type + "#" + r.Tag
}

// Kind is the shape of an index.
type Kind int

const (
	KindLocal Kind = iota
	KindLocalPair
	KindRemotePair
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindLocalPair:
		return "local_pair"
	case KindRemotePair:
		return "remote_pair"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Index describes a relationship from a source record.
type Index struct {
	Kind    Kind
	Forward Relation

	// Inverse is the reciprocal edge's relation, for pairs.
	Inverse Relation

	// Partition and Permission name the remote half of a remote pair.
	Partition  string
	Permission string
}

// Local is a one-directional edge within a partition.
func Local(forward Relation) Index {
	return Index{Kind: KindLocal, Forward: forward}
}

// LocalPair is a forward edge plus its reciprocal, both in this partition.
func LocalPair(forward, inverse Relation) Index {
	return Index{Kind: KindLocalPair, Forward: forward, Inverse: inverse}
}

// RemotePair is a local forward edge whose reciprocal lives in partition and
// is written by calling permission there.
func RemotePair(forward Relation, partition, permission string, inverse Relation) Index {
	return Index{
		Kind:       KindRemotePair,
		Forward:    forward,
		Inverse:    inverse,
		Partition:  partition,
		Permission: permission,
	}
}

func (i Index) validate() error {
	if i.Forward.Type == "" {
		return fmt.Errorf("index: forward link type is empty")
	}
	if i.Kind != KindLocal && i.Inverse.Type == "" {
		return fmt.Errorf("index %s: inverse link type is empty", i.Forward)
	}
	if i.Kind == KindRemotePair && (i.Partition == "" || i.Permission == "") {
		return fmt.Errorf("index %s: remote pair needs a partition and permission", i.Forward)
	}
	return nil
}

// Delta is the edge churn Update applies.
type Delta struct {
	Added   []ir.IdentityAddress `json:"added"`
	Removed []ir.IdentityAddress `json:"removed"`
}

// Empty reports whether d changes nothing.
func (d Delta) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Diff returns the targets in now but not prev (Added) and in prev but not
// now (Removed). Order follows the input slices; duplicates collapse.
func Diff(now, prev []ir.IdentityAddress) Delta {
	inNow := make(map[ir.IdentityAddress]bool, len(now))
	for _, a := range now {
		inNow[a] = true
	}
	inPrev := make(map[ir.IdentityAddress]bool, len(prev))
	for _, a := range prev {
		inPrev[a] = true
	}

	d := Delta{Added: []ir.IdentityAddress{}, Removed: []ir.IdentityAddress{}}
	seen := make(map[ir.IdentityAddress]bool)
	for _, a := range now {
		if !inPrev[a] && !seen[a] {
			d.Added = append(d.Added, a)
			seen[a] = true
		}
	}
	for _, a := range prev {
		if !inNow[a] && !seen[a] {
			d.Removed = append(d.Removed, a)
			seen[a] = true
		}
	}
	return d
}

// PairState is the outcome of a two-partition write.
type PairState int

const (
	// PairComplete means every edge the operation intended exists (or was
	// removed) on both sides.
	PairComplete PairState = iota

	// PairOneSided means the local edges were written but the remote
	// partition did not apply the reciprocal change.
	PairOneSided
)

func (s PairState) String() string {
	if s == PairOneSided {
		return "one_sided"
	}
	return "complete"
}

// PairResult reports what happened to both halves of a pair write.
type PairResult struct {
	State PairState

	// Partition is the remote partition, for remote pairs.
	Partition string

	// RemoteErr is the remote failure when State is PairOneSided.
	RemoteErr error
}

// OneSided reports whether only the local half was written.
func (r PairResult) OneSided() bool { return r.State == PairOneSided }
