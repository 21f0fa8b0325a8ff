package action

import (
	"context"
	"strings"

	"github.com/hupe1980/cognimesh/core"
)

// Built-in action names.
const (
	NameReply       = "REPLY"
	NameNone        = "NONE"
	NameIgnore      = "IGNORE"
	NameSendMessage = "SEND_MESSAGE"
)

type builtin struct {
	name        string
	similes     []string
	description string
	terminal    bool
}

func (b builtin) Name() string        { return b.name }
func (b builtin) Similes() []string   { return b.similes }
func (b builtin) Description() string { return b.description }
func (b builtin) Terminal() bool      { return b.terminal }

// ReplyAction answers with the response text of the turn's decision, read
// from core.ValueResponseText in State.
type ReplyAction struct{ builtin }

// NewReplyAction creates the REPLY action.
func NewReplyAction() *ReplyAction {
	return &ReplyAction{builtin{
		name:        NameReply,
		similes:     []string{"RESPOND", "RESPONSE", "GREET"},
		description: "Reply to the message with the generated response text.",
		terminal:    true,
	}}
}

// Validate implements Action.
func (*ReplyAction) Validate(context.Context, *core.Message, *core.State) bool { return true }

// Handle implements Action.
func (*ReplyAction) Handle(_ context.Context, _ *core.Message, state *core.State, _ []core.ActionResult) (core.ActionResult, error) {
	text := strings.TrimSpace(state.String(core.ValueResponseText))
	if text == "" {
		return core.ActionResult{}, core.NewError(core.CodeValidation, "no response text to reply with")
	}

	return core.ActionResult{
		Text:   text,
		Values: map[string]any{core.ValueReply: text},
	}, nil
}

// NoneAction acknowledges the message without doing anything.
type NoneAction struct{ builtin }

// NewNoneAction creates the NONE action.
func NewNoneAction() *NoneAction {
	return &NoneAction{builtin{
		name:        NameNone,
		similes:     []string{"NO_ACTION", "NOTHING"},
		description: "Do nothing; the reply already covers the message.",
		terminal:    true,
	}}
}

// Validate implements Action.
func (*NoneAction) Validate(context.Context, *core.Message, *core.State) bool { return true }

// Handle implements Action.
func (*NoneAction) Handle(context.Context, *core.Message, *core.State, []core.ActionResult) (core.ActionResult, error) {
	return core.ActionResult{}, nil
}

// IgnoreAction marks the turn as ignored.
type IgnoreAction struct{ builtin }

// NewIgnoreAction creates the IGNORE action.
func NewIgnoreAction() *IgnoreAction {
	return &IgnoreAction{builtin{
		name:        NameIgnore,
		similes:     []string{"STOP_TALKING", "STOP"},
		description: "Ignore the message; use when it is not addressed to the agent or the conversation is over.",
		terminal:    true,
	}}
}

// Validate implements Action.
func (*IgnoreAction) Validate(context.Context, *core.Message, *core.State) bool { return true }

// Handle implements Action.
func (*IgnoreAction) Handle(context.Context, *core.Message, *core.State, []core.ActionResult) (core.ActionResult, error) {
	return core.ActionResult{Values: map[string]any{core.ValueIgnored: true}}, nil
}

// Sender delivers text to a target (room, channel or entity id).
type Sender interface {
	Send(ctx context.Context, target, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, target, text string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, target, text string) error { return f(ctx, target, text) }

// SendMessageAction delivers the latest reply of the chain to the message
// targets, or to the message room when no targets are given.
type SendMessageAction struct {
	builtin
	sender Sender
}

// NewSendMessageAction creates the SEND_MESSAGE action.
func NewSendMessageAction(sender Sender) *SendMessageAction {
	return &SendMessageAction{
		builtin: builtin{
			name:        NameSendMessage,
			similes:     []string{"SEND", "DELIVER_MESSAGE"},
			description: "Send the reply produced earlier in this turn to the requested targets.",
		},
		sender: sender,
	}
}

// Validate implements Action. It requires a configured sender.
func (a *SendMessageAction) Validate(context.Context, *core.Message, *core.State) bool {
	return a.sender != nil
}

// Handle implements Action.
func (a *SendMessageAction) Handle(ctx context.Context, msg *core.Message, _ *core.State, prior []core.ActionResult) (core.ActionResult, error) {
	text, ok := LatestReply(prior)
	if !ok {
		return core.ActionResult{}, core.NewError(core.CodeValidation, "no reply to send")
	}

	targets := msg.Content.Targets
	if len(targets) == 0 {
		targets = []string{msg.RoomID}
	}

	for _, t := range targets {
		if err := a.sender.Send(ctx, t, text); err != nil {
			return core.ActionResult{}, err
		}
	}

	return core.ActionResult{
		Text:   text,
		Values: map[string]any{"sentTo": targets},
	}, nil
}

// LatestReply returns the most recent successful reply text in results.
func LatestReply(results []core.ActionResult) (string, bool) {
	for i := len(results) - 1; i >= 0; i-- {
		if text, ok := results[i].ReplyText(); ok {
			return text, true
		}
	}

	return "", false
}

// Builtins returns the built-in actions. SEND_MESSAGE is included only when
// sender is non-nil.
func Builtins(sender Sender) []Action {
	out := []Action{NewReplyAction(), NewNoneAction(), NewIgnoreAction()}
	if sender != nil {
		out = append(out, NewSendMessageAction(sender))
	}

	return out
}

var (
	_ Action   = (*ReplyAction)(nil)
	_ Action   = (*NoneAction)(nil)
	_ Action   = (*IgnoreAction)(nil)
	_ Action   = (*SendMessageAction)(nil)
	_ Terminal = (*ReplyAction)(nil)
)
