package loop

import (
	"context"
	"fmt"
	"time"
)

// DevSampler is a development stand-in for the real sampling loop. It emits a
// single content callback and an API response callback, then returns the
// input messages with one assistant turn appended. It makes the server
// runnable end-to-end without provider credentials.
type DevSampler struct {
	// Delay is slept before returning, to mimic a network-bound run.
	Delay time.Duration
}

// Sample implements Sampler.
func (d *DevSampler) Sample(ctx context.Context, req Request, cb Callbacks) ([]Message, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text := fmt.Sprintf("dev sampler: %s/%s received %d message(s)", req.Provider, req.Model, len(req.Messages))

	cb.OnContent(ContentBlock{
		Type:    "text",
		Payload: map[string]interface{}{"type": "text", "text": text},
	})
	cb.OnAPIResponse(APIResponse{
		StatusCode: 200,
		Headers:    map[string]string{"x-sampler": "dev"},
	})

	out := make([]Message, 0, len(req.Messages)+1)
	out = append(out, req.Messages...)
	out = append(out, Message{"role": "assistant", "content": text})
	return out, nil
}
