// Package loop defines the contract between the conversation service and the
// external sampling loop that drives model calls and tool execution. The loop
// itself lives outside this repository; the service hands it a message list
// and a set of callbacks and waits for the final message list or an error.
package loop

import "context"

// Message is one conversation turn as exchanged with the sampling loop. The
// service treats messages as opaque structured records and never inspects
// them beyond JSON round-tripping.
type Message map[string]interface{}

// ContentBlock is a single piece of model output emitted through OnContent.
type ContentBlock struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ToolResult is the outcome of one tool invocation emitted through
// OnToolResult. Error is empty on success. Base64Image carries screenshot
// data when the tool produced one.
type ToolResult struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
}

// APIResponse is a summary of one raw provider HTTP exchange emitted through
// OnAPIResponse.
type APIResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Callbacks receives progress events from a running sampling loop. The loop
// may invoke them zero or more times, in any order, but never concurrently
// for a single run.
type Callbacks interface {
	// OnContent is invoked for each content block the model emits.
	OnContent(block ContentBlock)

	// OnToolResult is invoked after each tool execution with the result and
	// the id of the tool-use block that requested it.
	OnToolResult(result ToolResult, toolID string)

	// OnAPIResponse is invoked after each raw provider API exchange.
	OnAPIResponse(resp APIResponse)
}

// Request carries everything a sampling loop needs for one run.
type Request struct {
	Model              string
	Provider           Provider
	SystemPromptSuffix string
	Messages           []Message
	APIKey             string

	// OnlyNMostRecentImages asks the loop to drop all but the N most recent
	// screenshots from the context. Zero keeps everything.
	OnlyNMostRecentImages int

	MaxTokens int
}

// Sampler is the external sampling loop. Sample blocks until the loop
// finishes, invoking cb as it goes, and returns the final message list. A
// run that fails partway returns the error from the failing call; messages
// already accumulated are discarded by the caller.
type Sampler interface {
	Sample(ctx context.Context, req Request, cb Callbacks) ([]Message, error)
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(ctx context.Context, req Request, cb Callbacks) ([]Message, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context, req Request, cb Callbacks) ([]Message, error) {
	return f(ctx, req, cb)
}
