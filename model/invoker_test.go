package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cognimesh/core"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Generate(ctx context.Context, t Type, prompt string, params Params) (string, error) {
	args := m.Called(ctx, t, prompt, params)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Info() Info { return Info{Name: "testify", Provider: "mock"} }

func stateWith(text string, values map[string]any) *core.State {
	s := core.NewState()
	s.Text = text
	for k, v := range values {
		s.Values[k] = v
	}

	return s
}

func TestInvoker_RendersStateIntoPrompt(t *testing.T) {
	b := new(mockBackend)
	b.On("Generate", mock.Anything, TypeTextLarge, "CTX\nagent: Ada", mock.Anything).
		Return("<actions>REPLY</actions><text>hi</text>", nil).Once()

	inv := NewInvoker(b)
	resp, err := inv.Invoke(context.Background(), stateWith("CTX", map[string]any{"agentName": "Ada"}), "{{.providers}}\nagent: {{.agentName}}", TypeTextLarge)
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.String("text"))
	b.AssertExpectations(t)
}

func TestInvoker_BackendFailureIsModelError(t *testing.T) {
	b := new(mockBackend)
	b.On("Generate", mock.Anything, TypeTextSmall, mock.Anything, mock.Anything).Return("", errors.New("503")).Once()

	_, err := NewInvoker(b).Invoke(context.Background(), core.NewState(), "p", TypeTextSmall)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModel)
	assert.True(t, IsNoDecision(err))
}

func TestInvoker_BackendPanicIsModelError(t *testing.T) {
	b := new(mockBackend)
	b.On("Generate", mock.Anything, TypeTextSmall, mock.Anything, mock.Anything).Panic("socket closed").Once()

	_, err := NewInvoker(b).Generate(context.Background(), TypeTextSmall, "p", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModel)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestInvoker_UnparseableIsParseError(t *testing.T) {
	inv := NewInvoker(NewMockBackend().SetFallback("free prose without structure"))

	_, err := inv.Invoke(context.Background(), core.NewState(), "p", TypeTextLarge)
	assert.ErrorIs(t, err, core.ErrParse)
	assert.True(t, IsNoDecision(err))
}

func TestInvoker_NoBackend(t *testing.T) {
	inv := NewInvoker(nil)
	assert.False(t, inv.Available())

	_, err := inv.Generate(context.Background(), TypeTextLarge, "p", Params{})
	assert.ErrorIs(t, err, core.ErrModel)
}

type slowBackend struct{}

func (slowBackend) Generate(ctx context.Context, _ Type, _ string, _ Params) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowBackend) Info() Info { return Info{Name: "slow"} }

func TestInvoker_Timeout(t *testing.T) {
	inv := NewInvoker(slowBackend{}, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	_, err := inv.Generate(context.Background(), TypeTextLarge, "p", Params{})
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.True(t, IsNoDecision(err))
}

func TestInvoker_TimeoutIgnoredByBackend(t *testing.T) {
	release := make(chan time.Time)

	b := &mockBackend{}
	b.On("Generate", mock.Anything, TypeTextSmall, "p", mock.Anything).
		WaitUntil(release).
		Return("<text>late</text>", nil).Once()

	inv := NewInvoker(b, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	start := time.Now()
	out, err := inv.Generate(context.Background(), TypeTextSmall, "p", Params{})
	elapsed := time.Since(start)

	close(release)

	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Empty(t, out)
	assert.Less(t, elapsed, time.Second)
	b.AssertExpectations(t)
}

func TestInvoker_MergesParams(t *testing.T) {
	mb := NewMockBackend()
	inv := NewInvoker(mb, func(o *Options) {
		o.Params = Params{System: "be brief", MaxTokens: 100, Temperature: Float(0.2)}
	})

	_, err := inv.Generate(context.Background(), TypeTextSmall, "p", Params{MaxTokens: 10})
	require.NoError(t, err)

	calls := mb.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "be brief", calls[0].Params.System)
	assert.Equal(t, 10, calls[0].Params.MaxTokens)
	assert.InDelta(t, 0.2, *calls[0].Params.Temperature, 1e-9)
}

func TestMockBackend_Order(t *testing.T) {
	mb := NewMockBackend().On("plan", "<a>rule</a>").Enqueue("<a>queued</a>")

	out, err := mb.Generate(context.Background(), TypeTextLarge, "make a plan", Params{})
	require.NoError(t, err)
	assert.Equal(t, "<a>queued</a>", out)

	out, _ = mb.Generate(context.Background(), TypeTextLarge, "make a plan", Params{})
	assert.Equal(t, "<a>rule</a>", out)

	out, _ = mb.Generate(context.Background(), TypeTextLarge, "other", Params{})
	assert.Equal(t, DefaultMockResponse, out)

	mb.SetFallback("")
	_, err = mb.Generate(context.Background(), TypeTextLarge, "other", Params{})
	assert.Error(t, err)
}
