package harness

// Trace event types.
const (
	EventGraph    = "graph"
	EventRegister = "register"
	EventIndex    = "index"
	EventRejected = "rejected"
)

// TraceEvent records one step of a scenario run.
type TraceEvent struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Graph string `json:"graph,omitempty"`
	ID    string `json:"id,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists graphs created and statements registered, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Refs maps statement refs to their identifiers.
	Refs map[string]string `json:"refs"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
