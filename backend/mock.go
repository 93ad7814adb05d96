package backend

import (
	"context"
	"fmt"
	"strings"
)

// script is one canned fragment sequence, optionally ending in a failure.
type script struct {
	fragments []string
	err       error
}

// MockBackend is a deterministic in-memory Backend for tests and dry runs.
// Scripts map a prompt to the exact fragment sequence to stream back;
// unscripted prompts stream a canned reply word by word.
type MockBackend struct {
	scripts map[string]script
}

// NewMockBackend constructs a MockBackend with no scripts.
func NewMockBackend() *MockBackend {
	return &MockBackend{scripts: make(map[string]script)}
}

// AddScript registers the fragment sequence streamed for a prompt.
func (m *MockBackend) AddScript(prompt string, fragments []string) {
	m.scripts[prompt] = script{fragments: fragments}
}

// AddFailingScript registers a sequence that streams the given fragments and
// then fails with err, simulating a backend dying mid-production.
func (m *MockBackend) AddFailingScript(prompt string, fragments []string, err error) {
	m.scripts[prompt] = script{fragments: fragments, err: err}
}

// Invoke implements Backend, streaming the scripted fragments in order.
func (m *MockBackend) Invoke(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 16)
	errCh := make(chan error, 1)

	sc, ok := m.scripts[req.Prompt]
	if !ok {
		words := strings.Fields(fmt.Sprintf("Mock response to: %s", req.Prompt))
		for i, w := range words {
			if i < len(words)-1 {
				w += " "
			}
			sc.fragments = append(sc.fragments, w)
		}
	}

	go func() {
		defer close(out)
		defer close(errCh)
		for _, text := range sc.fragments {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Fragment{Text: text}:
			}
		}
		if sc.err != nil {
			errCh <- sc.err
		}
	}()

	return out, errCh
}
