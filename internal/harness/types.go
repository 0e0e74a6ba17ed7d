package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int      `json:"step"`
	Action  string   `json:"action"`
	Outcome string   `json:"outcome"`
	Refs    []string `json:"refs,omitempty"`
}

// EntryState is one ledger row with ids replaced by aliases.
type EntryState struct {
	Ref         string `json:"ref"`
	Site        string `json:"site"`
	Flow        string `json:"flow"`
	Quantity    string `json:"quantity"`
	Reference   string `json:"reference,omitempty"`
	Destination string `json:"destination,omitempty"`
	Confirmed   bool   `json:"confirmed"`
	Resolves    string `json:"resolves,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step outcome and assertion matched.
	Pass bool `json:"pass"`

	// Trace lists every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entries is the final ledger in store order.
	Entries []EntryState `json:"entries"`

	// Stock maps each site alias to its final current stock.
	Stock map[string]string `json:"stock"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Entries: []EntryState{},
		Stock:   make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(step int, action, outcome string, refs ...string) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:    step,
		Action:  action,
		Outcome: outcome,
		Refs:    refs,
	})
}
