package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/internal/testutil"
)

func newDispatcher(t *testing.T, actions ...Action) *Dispatcher {
	t.Helper()

	reg, err := NewRegistry(actions...)
	require.NoError(t, err)

	return NewDispatcher(reg, func(o *Options) {
		o.Timeout = 100 * time.Millisecond
	})
}

func record(name string, seen *[][]string) *FuncAction {
	return NewFuncAction(name, "records prior results", func(_ context.Context, call Call) (core.ActionResult, error) {
		var names []string
		for _, p := range call.Prior {
			names = append(names, p.Action)
		}

		*seen = append(*seen, names)

		return core.ActionResult{Text: name}, nil
	})
}

func TestRegistry_NormalizedLookup(t *testing.T) {
	reg, err := NewRegistry(NewReplyAction(), NewSendMessageAction(SenderFunc(func(context.Context, string, string) error { return nil })))
	require.NoError(t, err)

	for _, name := range []string{"REPLY", "reply", "Respond", "send-message", "Send Message", "SEND"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, name)
	}

	_, ok := reg.Lookup("unknown")
	assert.False(t, ok)

	err = reg.Register(NewFuncAction("re-ply", "dup", nil))
	assert.ErrorIs(t, err, core.ErrDuplicate)

	err = reg.Register(NewFuncAction("--", "empty", nil))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRegistry_SimileKeepsFirstOwner(t *testing.T) {
	first := NewFuncAction("FIRST", "", nil, func(o *FuncOptions) { o.Similes = []string{"SHARED"} })
	second := NewFuncAction("SECOND", "", nil, func(o *FuncOptions) { o.Similes = []string{"shared"} })

	reg, err := NewRegistry(first, second)
	require.NoError(t, err)

	a, ok := reg.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, "FIRST", a.Name())
}

func TestValidateCandidates_PanicsCountAsFalse(t *testing.T) {
	panicky := NewFuncAction("PANICKY", "", nil, func(o *FuncOptions) {
		o.Validate = func(context.Context, *core.Message, *core.State) bool { panic("nope") }
	})
	never := NewFuncAction("NEVER", "", nil, func(o *FuncOptions) {
		o.Validate = func(context.Context, *core.Message, *core.State) bool { return false }
	})

	d := newDispatcher(t, NewReplyAction(), panicky, never, NewNoneAction())

	got := d.ValidateCandidates(context.Background(), core.NewMessage("r", "u", "x"), core.NewState())
	assert.Equal(t, []string{NameReply, NameNone}, got)
}

func TestSelect_TerminalAndChaining(t *testing.T) {
	sender := SenderFunc(func(context.Context, string, string) error { return nil })
	d := newDispatcher(t, Builtins(sender)...)

	candidates := []string{NameReply, NameNone, NameIgnore, NameSendMessage}
	msg := core.NewMessage("r", "u", "x")

	got := d.Select([]string{"reply", "IGNORE", "send_message", "respond"}, candidates, msg)
	assert.Equal(t, []string{NameReply, NameSendMessage}, got)

	chained := testutil.NewMessageBuilder("r", "u").Text("x").Actions("REPLY", "IGNORE").Build()
	got = d.Select([]string{"REPLY", "IGNORE"}, candidates, chained)
	assert.Equal(t, []string{NameReply, NameIgnore}, got)

	got = d.Select([]string{"NONE", "MYSTERY"}, []string{NameReply}, msg)
	assert.Equal(t, []string{"MYSTERY"}, got)
}

func TestExecute_SequentialWithPriorResults(t *testing.T) {
	var seen [][]string

	d := newDispatcher(t, record("A", &seen), record("B", &seen), record("C", &seen))

	prior := []core.ActionResult{{Action: "EARLIER", Success: true}}
	results := d.Execute(context.Background(), []string{"A", "B", "C"}, core.NewMessage("r", "u", "x"), core.NewState(), prior)

	require.Len(t, results, 3)
	assert.Equal(t, [][]string{{"EARLIER"}, {"EARLIER", "A"}, {"EARLIER", "A", "B"}}, seen)

	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestExecute_FailuresContinueChain(t *testing.T) {
	failing := NewFuncAction("FAIL", "", func(context.Context, Call) (core.ActionResult, error) {
		return core.ActionResult{}, errors.New("broken")
	})
	panicking := NewFuncAction("PANIC", "", func(context.Context, Call) (core.ActionResult, error) {
		panic("boom")
	})
	slow := NewFuncAction("SLOW", "", func(ctx context.Context, _ Call) (core.ActionResult, error) {
		<-ctx.Done()
		return core.ActionResult{}, ctx.Err()
	})
	ok := NewFuncAction("OK", "", func(context.Context, Call) (core.ActionResult, error) {
		return core.ActionResult{Text: "fine"}, nil
	})

	d := newDispatcher(t, failing, panicking, slow, ok)

	results := d.Execute(context.Background(), []string{"FAIL", "PANIC", "GHOST", "SLOW", "OK"}, core.NewMessage("r", "u", "x"), core.NewState(), nil)
	require.Len(t, results, 5)

	assert.Equal(t, core.CodeActionHandler, results[0].Error)
	assert.Equal(t, core.CodeActionHandler, results[1].Error)
	assert.Contains(t, results[1].Text, "boom")
	assert.Equal(t, core.CodeNotFound, results[2].Error)
	assert.Equal(t, core.CodeTimeout, results[3].Error)
	assert.True(t, results[4].Success)
	assert.Equal(t, "fine", results[4].Text)
}

func TestExecute_TimeoutIgnoredByHandler(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})

	stubborn := NewFuncAction("STUBBORN", "", func(context.Context, Call) (core.ActionResult, error) {
		defer close(finished)

		<-release

		return core.ActionResult{Text: "late"}, nil
	})
	ok := NewFuncAction("OK", "", func(context.Context, Call) (core.ActionResult, error) {
		return core.ActionResult{Text: "fine"}, nil
	})

	d := newDispatcher(t, stubborn, ok)

	start := time.Now()
	results := d.Execute(context.Background(), []string{"STUBBORN", "OK"}, core.NewMessage("r", "u", "x"), core.NewState(), nil)
	elapsed := time.Since(start)

	close(release)
	<-finished

	require.Len(t, results, 2)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, results[0].Success)
	assert.Equal(t, core.CodeTimeout, results[0].Error)
	assert.NotEqual(t, "late", results[0].Text)
	assert.True(t, results[1].Success)
}

func TestBuiltins_ReplyThenSend(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)

	sender := SenderFunc(func(_ context.Context, target, text string) error {
		mu.Lock()
		defer mu.Unlock()

		sent = append(sent, target+"="+text)

		return nil
	})

	d := newDispatcher(t, Builtins(sender)...)
	msg := testutil.NewMessageBuilder("room", "user").Text("hi").Targets("chan-1", "chan-2").Build()
	state := testutil.NewStateBuilder().Value(core.ValueResponseText, "Hello there").Build()

	results := d.Execute(context.Background(), []string{NameReply, NameSendMessage}, msg, state, nil)
	require.Len(t, results, 2)

	reply, ok := results[0].ReplyText()
	require.True(t, ok)
	assert.Equal(t, "Hello there", reply)
	assert.True(t, results[1].Success)
	assert.Equal(t, []string{"chan-1=Hello there", "chan-2=Hello there"}, sent)
}

func TestBuiltins_SendWithoutReplyFails(t *testing.T) {
	d := newDispatcher(t, Builtins(SenderFunc(func(context.Context, string, string) error { return nil }))...)

	results := d.Execute(context.Background(), []string{NameSendMessage}, core.NewMessage("r", "u", "x"), core.NewState(), nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, core.CodeValidation, results[0].Error)
}

func TestBuiltins_ReplyRequiresText(t *testing.T) {
	d := newDispatcher(t, Builtins(nil)...)

	results := d.Execute(context.Background(), []string{NameReply, NameIgnore}, core.NewMessage("r", "u", "x"), core.NewState(), nil)
	require.Len(t, results, 2)
	assert.Equal(t, core.CodeValidation, results[0].Error)
	assert.Equal(t, true, results[1].Values[core.ValueIgnored])
}

type lookupArgs struct {
	ID string `json:"id"`
}

func TestFuncAction_ValidatesParams(t *testing.T) {
	lookup := NewFuncActionFromStruct("LOOKUP", "look up", lookupArgs{}, func(_ context.Context, call Call) (core.ActionResult, error) {
		return core.ActionResult{Text: "found " + call.Params["id"].(string)}, nil
	})

	d := newDispatcher(t, lookup)
	msg := core.NewMessage("r", "u", "x")

	results := d.Execute(context.Background(), []string{"LOOKUP"}, msg, core.NewState(), nil)
	assert.Equal(t, core.CodeValidation, results[0].Error)

	state := WithParams(core.NewState(), "LOOKUP", map[string]any{"id": "42"})
	results = d.Execute(context.Background(), []string{"LOOKUP"}, msg, state, nil)
	require.True(t, results[0].Success)
	assert.Equal(t, "found 42", results[0].Text)
}
