package ir

// Action is the kind of change a header records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Header is one link of a record's revision chain.
// Headers are immutable; an update appends a header whose Prev is the header
// it supersedes.
type Header struct {
	Hash      RevisionPointer `json:"hash"`
	Action    Action          `json:"action"`
	EntryType string          `json:"entry_type"`
	EntryHash EntryHash       `json:"entry_hash,omitempty"` // empty for deletes
	Prev      RevisionPointer `json:"prev_header,omitempty"`
	Identity  IdentityAddress `json:"identity"`
	Seq       int64           `json:"seq"` // partition-local logical clock
}

// Link is a typed, tagged, directed edge between two identities.
type Link struct {
	ID     int64           `json:"id"`
	Base   IdentityAddress `json:"base"`
	Target IdentityAddress `json:"target"`
	Type   string          `json:"type"`
	Tag    string          `json:"tag"`
	Seq    int64           `json:"seq"`
}

// Grant authorizes holders of Secret to call the listed functions on the
// partition that issued it. Functions are "module.function" names.
type Grant struct {
	ID        string   `json:"id"`
	Grantor   string   `json:"grantor"`
	Secret    string   `json:"secret"`
	Functions []string `json:"functions"`
	Revoked   bool     `json:"revoked"`
	Seq       int64    `json:"seq"`
}

// Allows reports whether the grant covers module.function.
func (g Grant) Allows(module, function string) bool {
	if g.Revoked {
		return false
	}
	name := module + "." + function
	for _, f := range g.Functions {
		if f == name || f == module+".*" {
			return true
		}
	}
	return false
}

// Claim is the caller-side copy of a grant issued by another partition,
// keyed by the permission id callers use to name the remote operation.
type Claim struct {
	Partition  string `json:"partition" yaml:"partition"`
	Permission string `json:"permission" yaml:"permission"`
	Grantor    string `json:"grantor" yaml:"grantor"`
	Secret     string `json:"secret" yaml:"secret"`
	Module     string `json:"module" yaml:"module"`
	Function   string `json:"function" yaml:"function"`
}
