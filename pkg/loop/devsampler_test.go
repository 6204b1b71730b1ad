package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingCallbacks struct {
	contents  []ContentBlock
	results   []ToolResult
	responses []APIResponse
}

func (c *capturingCallbacks) OnContent(b ContentBlock)             { c.contents = append(c.contents, b) }
func (c *capturingCallbacks) OnToolResult(r ToolResult, id string) { c.results = append(c.results, r) }
func (c *capturingCallbacks) OnAPIResponse(r APIResponse)          { c.responses = append(c.responses, r) }

func TestDevSampler_Sample(t *testing.T) {
	cb := &capturingCallbacks{}
	s := &DevSampler{}

	in := []Message{{"role": "user", "content": "hi"}}
	out, err := s.Sample(context.Background(), Request{
		Model:    "claude-3-5-sonnet-20241022",
		Provider: ProviderAnthropic,
		Messages: in,
	}, cb)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "assistant", out[1]["role"])

	require.Len(t, cb.contents, 1)
	assert.Equal(t, "text", cb.contents[0].Type)
	require.Len(t, cb.responses, 1)
	assert.Equal(t, 200, cb.responses[0].StatusCode)
	assert.Empty(t, cb.results)
}

func TestDevSampler_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &DevSampler{Delay: time.Second}
	_, err := s.Sample(ctx, Request{}, &capturingCallbacks{})
	assert.ErrorIs(t, err, context.Canceled)
}
