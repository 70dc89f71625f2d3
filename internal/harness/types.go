package harness

// TraceEvent records one engine interaction during a scenario run.
type TraceEvent struct {
	// Type is "toggle" or "reload".
	Type string `json:"type"`

	Card    string `json:"card,omitempty"`
	Segment string `json:"segment,omitempty"`
	Status  string `json:"status,omitempty"`
	Evicted string `json:"evicted,omitempty"`
	Token   string `json:"token,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`

	// Slot and Value describe the identity change behind a reload
	// event.
	Slot  string `json:"slot,omitempty"`
	Value string `json:"value,omitempty"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and
	// assertion held.
	Pass bool `json:"pass"`

	// User and Source record the identity resolution the engine ran
	// under.
	User   string `json:"user"`
	Source string `json:"source"`

	// Trace contains every toggle result in flow order, then the
	// reload event when the scenario injected a conflict.
	Trace []TraceEvent `json:"trace"`

	// Starred is the final star order per segment, oldest first.
	// Segments with no stars are absent.
	Starred map[string][]string `json:"starred"`

	// Order is the settled card order per segment.
	Order map[string][]string `json:"order"`

	// Errors contains validation error messages. Empty if Pass is
	// true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Starred: map[string][]string{},
		Order:   map[string][]string{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// AddToggle appends a toggle trace event.
func (r *Result) AddToggle(ev TraceEvent) {
	ev.Type = "toggle"
	r.Trace = append(r.Trace, ev)
}

// AddReload appends the reload trace event.
func (r *Result) AddReload(slot, value string) {
	r.Trace = append(r.Trace, TraceEvent{Type: "reload", Slot: slot, Value: value})
}
