package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusai/locus-agent/internal/common/logger"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// stubWorker writes a shell script standing in for the locus-worker binary.
func stubWorker(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locus-worker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) byType(et EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

type fakeResolver struct {
	sprint *v1.Sprint
	err    error
	calls  int
}

func (f *fakeResolver) GetActiveSprint(context.Context) (*v1.Sprint, error) {
	f.calls++
	return f.sprint, f.err
}

func newTestOrchestrator(t *testing.T, opts Options, resolver SprintResolver) *Orchestrator {
	t.Helper()
	if opts.Worker.ProjectPath == "" {
		opts.Worker.ProjectPath = t.TempDir()
	}
	return New(opts, resolver, logger.Default())
}

func TestStartTwiceReturnsErrAlreadyRunning(t *testing.T) {
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, "sleep 5"),
	}, nil)

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrAlreadyRunning)

	o.Stop()
	_ = o.Wait()
}

func TestStartAgainAfterStop(t *testing.T) {
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, "sleep 5"),
	}, nil)

	require.NoError(t, o.Start(context.Background()))
	o.Stop()
	require.NoError(t, o.Start(context.Background()))

	o.Stop()
	_ = o.Wait()
}

func TestResolvesActiveSprintAndForwardsFlags(t *testing.T) {
	project := t.TempDir()
	resolver := &fakeResolver{sprint: &v1.Sprint{ID: "s-1"}}
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, `echo "$@" > worker-args.txt; echo "$LOCUS_API_KEY" > worker-key.txt`),
		Worker: WorkerConfig{
			ProjectPath:   project,
			APIURL:        "https://api.example.com",
			APIKey:        "secret-key",
			WorkspaceID:   "ws-1",
			Model:         "claude-sonnet-4-5",
			PollInterval:  2 * time.Second,
			MaxTasks:      5,
			MaxEmptyPolls: 3,
		},
	}, resolver)

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Wait())
	assert.Equal(t, 1, resolver.calls)

	args, err := os.ReadFile(filepath.Join(project, "worker-args.txt"))
	require.NoError(t, err)
	for _, want := range []string{
		"--project " + project,
		"--api-url https://api.example.com",
		"--workspace ws-1",
		"--agent-id agent-",
		"--sprint s-1",
		"--model claude-sonnet-4-5",
		"--poll-interval 2s",
		"--max-tasks 5",
		"--max-empty-polls 3",
	} {
		assert.Contains(t, string(args), want)
	}
	assert.NotContains(t, string(args), "secret-key", "api key must not appear in argv")

	key, err := os.ReadFile(filepath.Join(project, "worker-key.txt"))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", strings.TrimSpace(string(key)))
}

func TestPinnedSprintSkipsResolver(t *testing.T) {
	project := t.TempDir()
	resolver := &fakeResolver{sprint: &v1.Sprint{ID: "s-1"}}
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, `echo "$@" > worker-args.txt`),
		Worker:       WorkerConfig{ProjectPath: project, SprintID: "s-9"},
	}, resolver)

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Wait())

	assert.Equal(t, 0, resolver.calls)
	args, err := os.ReadFile(filepath.Join(project, "worker-args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "--sprint s-9")
}

func TestResolverFailureRunsWholeWorkspace(t *testing.T) {
	project := t.TempDir()
	resolver := &fakeResolver{err: assert.AnError}
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, `echo "$@" > worker-args.txt`),
		Worker:       WorkerConfig{ProjectPath: project},
	}, resolver)

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Wait())

	args, err := os.ReadFile(filepath.Join(project, "worker-args.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(args), "--sprint")
}

func TestFailedWorkerDoesNotAbortPeers(t *testing.T) {
	// mkdir is atomic, so exactly one of the two workers takes the failure
	// branch.
	script := `if mkdir first.lock 2>/dev/null; then exit 1; fi; exit 0`
	recorder := &eventRecorder{}
	o := newTestOrchestrator(t, Options{
		WorkerBinary: stubWorker(t, script),
		WorkerCount:  2,
		OnEvent:      recorder.record,
	}, nil)

	require.NoError(t, o.Start(context.Background()))
	err := o.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 worker(s) failed")

	assert.Len(t, recorder.byType(EventAgentSpawned), 2)
	completed := recorder.byType(EventAgentCompleted)
	require.Len(t, completed, 2)
	codes := []int{completed[0].ExitCode, completed[1].ExitCode}
	sort.Ints(codes)
	assert.Equal(t, []int{0, 1}, codes)
	assert.Len(t, recorder.byType(EventStopped), 1)
}

func TestSpawnFailureEmitsErrorAndLeavesStoppable(t *testing.T) {
	recorder := &eventRecorder{}
	o := newTestOrchestrator(t, Options{
		WorkerBinary: filepath.Join(t.TempDir(), "no-such-binary"),
		OnEvent:      recorder.record,
	}, nil)

	err := o.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn worker")
	require.Len(t, recorder.byType(EventError), 1)

	// A failed Start never flips the running flag.
	err = o.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
}

func TestForwardStdoutVerbatim(t *testing.T) {
	var out bytes.Buffer
	forwardStdout(&out, strings.NewReader("{\"type\":\"start\"}\n{\"type\":\"done\"}\n"))
	assert.Equal(t, "{\"type\":\"start\"}\n{\"type\":\"done\"}\n", out.String())
}

func TestForwardStderrPrefixesAgentID(t *testing.T) {
	var out bytes.Buffer
	forwardStderr(&out, "agent-1-abc", strings.NewReader("boom\nstill going\n"))
	assert.Equal(t, "[agent-1-abc] ERR: boom\n[agent-1-abc] ERR: still going\n", out.String())
}
