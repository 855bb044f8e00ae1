package llm

import (
	"context"
	"sync"
)

// MockGenerator is a scripted generator for tests. Responses are returned in
// order; when exhausted the last response repeats. A non-nil Err is returned
// on every call instead.
type MockGenerator struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Chunks    []Chunk // replayed by GenerateStream before returning

	// Calls records every prompt received, flat or cached.
	Calls []MockCall
	next  int
}

// MockCall captures the arguments of one generation call.
type MockCall struct {
	System   string
	Segments []string
	Prompt   string
	Cached   bool
}

var (
	_ CachingTextGenerator = (*MockGenerator)(nil)
	_ StreamingGenerator   = (*MockGenerator)(nil)
)

// Generate returns the next scripted response.
func (m *MockGenerator) Generate(_ context.Context, prompt string) (*Result, error) {
	return m.record(MockCall{Prompt: prompt})
}

// GenerateCached returns the next scripted response.
func (m *MockGenerator) GenerateCached(_ context.Context, system string, segments []string, prompt string) (*Result, error) {
	return m.record(MockCall{System: system, Segments: segments, Prompt: prompt, Cached: true})
}

// GenerateStream replays scripted chunks and returns the next response.
func (m *MockGenerator) GenerateStream(_ context.Context, prompt string, onChunk ChunkHandler) (*Result, error) {
	if onChunk != nil {
		m.mu.Lock()
		chunks := m.Chunks
		m.mu.Unlock()
		for _, c := range chunks {
			if err := onChunk(c); err != nil {
				return nil, err
			}
		}
	}
	return m.record(MockCall{Prompt: prompt})
}

func (m *MockGenerator) record(call MockCall) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &Result{}, nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return &Result{Text: m.Responses[idx]}, nil
}
