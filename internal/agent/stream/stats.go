package stream

import (
	"sync"
	"time"
)

// ToolInvocation is one tool call observed during a task execution.
type ToolInvocation struct {
	Name      string
	ID        string
	StartTime time.Time
	EndTime   *time.Time
	Duration  *time.Duration
	Success   *bool
	Error     string
}

// Finished reports whether the invocation has completed.
func (t *ToolInvocation) Finished() bool {
	return t.EndTime != nil
}

// ExecutionStats accumulates per-task execution data. Lifetime is one task.
type ExecutionStats struct {
	mu          sync.Mutex
	startTime   time.Time
	endTime     *time.Time
	invocations []*ToolInvocation
	tokensUsed  int
	lastError   string
}

// NewExecutionStats starts the per-task clock.
func NewExecutionStats() *ExecutionStats {
	return &ExecutionStats{startTime: time.Now()}
}

// RecordToolStart appends a new unfinished invocation.
func (s *ExecutionStats) RecordToolStart(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = append(s.invocations, &ToolInvocation{
		Name:      name,
		ID:        id,
		StartTime: time.Now(),
	})
}

// RecordToolEnd completes an invocation and returns it. Matching: by exact
// id when given; otherwise the most recent unfinished invocation with the
// same name; otherwise the most recent invocation with that name. This
// tolerates partial ordering in the input stream. Returns nil when nothing
// matches.
func (s *ExecutionStats) RecordToolEnd(name, id string, success bool, errMsg string) *ToolInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := s.match(name, id)
	if inv == nil {
		return nil
	}
	now := time.Now()
	duration := now.Sub(inv.StartTime)
	inv.EndTime = &now
	inv.Duration = &duration
	inv.Success = &success
	inv.Error = errMsg
	return inv
}

func (s *ExecutionStats) match(name, id string) *ToolInvocation {
	if id != "" {
		for i := len(s.invocations) - 1; i >= 0; i-- {
			if s.invocations[i].ID == id {
				return s.invocations[i]
			}
		}
	}
	for i := len(s.invocations) - 1; i >= 0; i-- {
		if s.invocations[i].Name == name && !s.invocations[i].Finished() {
			return s.invocations[i]
		}
	}
	for i := len(s.invocations) - 1; i >= 0; i-- {
		if s.invocations[i].Name == name {
			return s.invocations[i]
		}
	}
	return nil
}

// RecordError stores the terminal error message.
func (s *ExecutionStats) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

// AddTokens accumulates reported token usage.
func (s *ExecutionStats) AddTokens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokensUsed += n
}

// TokensUsed returns the accumulated token count.
func (s *ExecutionStats) TokensUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensUsed
}

// Finish stamps the end time once and returns the total duration.
func (s *ExecutionStats) Finish() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime == nil {
		now := time.Now()
		s.endTime = &now
	}
	return s.endTime.Sub(s.startTime)
}

// ToolNamesInOrder returns distinct tool names in order of first use.
func (s *ExecutionStats) ToolNamesInOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(s.invocations))
	var names []string
	for _, inv := range s.invocations {
		if !seen[inv.Name] {
			seen[inv.Name] = true
			names = append(names, inv.Name)
		}
	}
	return names
}

// Invocations returns a snapshot of recorded invocations.
func (s *ExecutionStats) Invocations() []ToolInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolInvocation, len(s.invocations))
	for i, inv := range s.invocations {
		out[i] = *inv
	}
	return out
}
