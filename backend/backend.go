// Package backend defines the generation capability consumed by the
// instrumentation pipeline: given one invocation request it produces an
// ordered, consume-once sequence of text fragments. How text is generated is
// opaque to the rest of the repository; adapters for concrete providers live
// in subpackages.
package backend

import "context"

// Label identifies one of the two invocation paths being compared. It is
// attached to every metric, span and transcript section so a consumer can
// break results down per path.
type Label string

const (
	// LabelPlugin marks the skill-mediated path.
	LabelPlugin Label = "plugin_function"

	// LabelDirect marks the plain chat path.
	LabelDirect Label = "direct_chat"
)

// Fragment is one incrementally produced unit of generated text. Fragment
// boundaries are backend-determined and carry no meaning; ordering does.
type Fragment struct {
	Text string
}

// Params carries provider-specific generation knobs. Opaque to the core.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Request describes one invocation. Immutable once created.
type Request struct {
	Operation Label
	System    string
	Prompt    string
	Params    Params
}

// Backend produces a fragment sequence for a request.
//
// The fragment channel is closed at sequence exhaustion. A failure before or
// during production is delivered on the error channel, which is closed after
// the fragment channel; a received error terminates the sequence. Both
// channels are consume-once and forward-only.
type Backend interface {
	Invoke(ctx context.Context, req Request) (<-chan Fragment, <-chan error)
}
