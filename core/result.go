package core

// ProviderResult is what a provider contributes to State.
type ProviderResult struct {
	Text   string
	Values map[string]any
	Data   map[string]any
}

// ActionResult is the outcome of one action handler invocation.
type ActionResult struct {
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Text    string         `json:"text,omitempty"`
	Values  map[string]any `json:"values,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   Code           `json:"error,omitempty"`
	Err     error          `json:"-"`
}

// FailedResult builds an unsuccessful ActionResult from an error.
func FailedResult(action string, err error) ActionResult {
	res := ActionResult{
		Action: action,
		Error:  CodeOf(err),
		Err:    err,
	}

	if err != nil {
		res.Text = err.Error()
	}

	return res
}

// ReplyText returns the reply carried by a result, if any.
func (r ActionResult) ReplyText() (string, bool) {
	if !r.Success || r.Values == nil {
		return "", false
	}

	s, ok := r.Values[ValueReply].(string)

	return s, ok && s != ""
}

// Well-known keys in State.Values and ActionResult.Values.
const (
	ValueReply        = "reply"
	ValueThought      = "thought"
	ValueResponseText = "responseText"
	ValueAgentName    = "agentName"
	ValueIgnored      = "ignored"
)
