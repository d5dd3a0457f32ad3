package harness

// Trace event types.
const (
	EventCall       = "call"
	EventDisconnect = "disconnect"
	EventReconnect  = "reconnect"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Type      string `json:"type"`
	Partition string `json:"partition"`
	From      string `json:"from,omitempty"`
	Call      string `json:"call,omitempty"` // module.function, or the permission for calls made with from
	Outcome   string `json:"outcome,omitempty"`
	Seq       int64  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Vars holds the values saved by steps.
	Vars map[string]string `json:"vars,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Vars:   make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCallTrace adds a call and its outcome to the trace.
func (r *Result) AddCallTrace(partition, from, call, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventCall,
		Partition: partition,
		From:      from,
		Call:      call,
		Outcome:   outcome,
		Seq:       int64(len(r.Trace) + 1),
	})
}

// AddMeshTrace adds a disconnect or reconnect to the trace.
func (r *Result) AddMeshTrace(eventType, partition string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      eventType,
		Partition: partition,
		Seq:       int64(len(r.Trace) + 1),
	})
}
