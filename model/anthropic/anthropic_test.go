package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/cognimesh/model"
)

func TestBuildParams_TierAndOverrides(t *testing.T) {
	b := NewBackend(func(o *Options) {
		o.APIKey = "test"
		o.SmallModel = anthropic.ModelClaude3_5Haiku20241022
	})

	p := b.buildParams(model.TypeTextSmall, "hello", model.Params{System: "sys", MaxTokens: 64, Stop: []string{"</response>"}})

	assert.Equal(t, anthropic.ModelClaude3_5Haiku20241022, p.Model)
	assert.Equal(t, int64(64), p.MaxTokens)
	assert.Len(t, p.Messages, 1)
	assert.Equal(t, "sys", p.System[0].Text)
	assert.Equal(t, []string{"</response>"}, p.StopSequences)

	p = b.buildParams(model.TypeTextLarge, "hello", model.Params{})
	assert.Equal(t, anthropic.ModelClaude3_5Sonnet20241022, p.Model)
	assert.Equal(t, int64(4096), p.MaxTokens)
	assert.Empty(t, p.System)
	assert.Equal(t, "anthropic", b.Info().Provider)
}
