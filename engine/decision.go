package engine

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/cognimesh/model"
)

// MessageTemplate asks the large model tier how to respond to a message. It
// receives the State values plus message and senderName.
const MessageTemplate = `{{.providers}}

# Task
Decide how {{default "the agent" .agentName}} responds to the latest message from {{.senderName}}:
{{.message}}

Available actions: {{default "REPLY" .actionNames}}

List the actions to run in the order they should run. Name extra context
providers only when the context above is not enough. Give action
parameters as a JSON object keyed by action name.

Respond using this format:
<response>
<thought>short reasoning</thought>
<actions>comma separated action names</actions>
<providers>comma separated provider names, optional</providers>
<evaluators>comma separated evaluator names, optional</evaluators>
<params>{"ACTION": {"name": "value"}}, optional</params>
<text>the reply text</text>
</response>`

// Decision is the parsed message decision of one turn.
type Decision struct {
	Thought string `json:"thought,omitempty"`
	// Actions in the order the model wants them to run.
	Actions []string `json:"actions,omitempty"`
	// Providers requested in addition to the turn's default set.
	Providers []string `json:"providers,omitempty"`
	// Evaluators requested by name for this turn.
	Evaluators []string `json:"evaluators,omitempty"`
	Text       string   `json:"text,omitempty"`
	// Params by action name, as written by the model.
	Params map[string]map[string]any `json:"params,omitempty"`
}

// ParseDecision reads a Decision from a parsed response. A decision with
// reply text but no actions replies with that text.
func ParseDecision(resp *model.Response) *Decision {
	d := &Decision{
		Thought:    resp.String("thought"),
		Actions:    resp.List("actions"),
		Providers:  resp.List("providers"),
		Evaluators: resp.List("evaluators"),
		Text:       strings.TrimSpace(resp.String("text")),
		Params:     parseParams(resp.String("params")),
	}

	if len(d.Actions) == 0 && d.Text != "" {
		d.Actions = []string{"REPLY"}
	}

	return d
}

func parseParams(raw string) map[string]map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}

	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return nil
	}

	out := map[string]map[string]any{}

	obj.ForEach(func(key, value gjson.Result) bool {
		if m, ok := value.Value().(map[string]any); ok {
			out[key.String()] = m
		}

		return true
	})

	if len(out) == 0 {
		return nil
	}

	return out
}
