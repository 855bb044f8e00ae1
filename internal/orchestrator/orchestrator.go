// Package orchestrator spawns and supervises locus-worker subprocesses.
// Each worker gets its own OS process so a wedged or crashed execution
// never takes down its peers.
package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/locusai/locus-agent/internal/agent/worker"
	"github.com/locusai/locus-agent/internal/common/logger"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// ErrAlreadyRunning is returned by Start when the orchestrator has
// already been started.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// EventType classifies orchestrator lifecycle events.
type EventType string

const (
	EventStarted        EventType = "started"
	EventAgentSpawned   EventType = "agent:spawned"
	EventAgentCompleted EventType = "agent:completed"
	EventStopped        EventType = "stopped"
	EventError          EventType = "error"
)

// Event is one orchestrator lifecycle notification.
type Event struct {
	Type     EventType
	AgentID  string
	ExitCode int
	Err      error
}

// EventHandler receives lifecycle events. Optional.
type EventHandler func(Event)

// SprintResolver resolves the workspace's active sprint when no sprint id
// is configured.
type SprintResolver interface {
	GetActiveSprint(ctx context.Context) (*v1.Sprint, error)
}

// WorkerConfig carries the settings forwarded to every worker subprocess.
type WorkerConfig struct {
	ProjectPath   string
	APIURL        string
	APIKey        string
	WorkspaceID   string
	SprintID      string // empty means resolve from server, then whole-workspace
	Model         string
	PollInterval  time.Duration
	MaxTasks      int
	MaxEmptyPolls int
}

// Options configures an Orchestrator.
type Options struct {
	WorkerBinary string // auto-detected when empty
	WorkerCount  int    // default 1
	Worker       WorkerConfig
	OnEvent      EventHandler
}

// Orchestrator runs a fleet of worker subprocesses to completion.
type Orchestrator struct {
	binaryPath  string
	workerCount int
	workerCfg   WorkerConfig
	onEvent     EventHandler
	resolver    SprintResolver
	logger      *logger.Logger

	mu      sync.Mutex
	running bool
	procs   []*workerProc
	group   *errgroup.Group

	failed int
}

type workerProc struct {
	agentID string
	cmd     *exec.Cmd
}

// New creates an Orchestrator. resolver may be nil when a sprint id is
// already pinned in the worker config.
func New(opts Options, resolver SprintResolver, log *logger.Logger) *Orchestrator {
	binary := opts.WorkerBinary
	if binary == "" {
		binary = findWorkerBinary()
	}
	count := opts.WorkerCount
	if count <= 0 {
		count = 1
	}
	return &Orchestrator{
		binaryPath:  binary,
		workerCount: count,
		workerCfg:   opts.Worker,
		onEvent:     opts.OnEvent,
		resolver:    resolver,
		logger:      log.WithFields(zap.String("component", "orchestrator")),
	}
}

// findWorkerBinary locates the locus-worker binary next to the current
// executable, then on PATH.
func findWorkerBinary() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "locus-worker")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath("locus-worker"); err == nil {
		return path
	}
	return "locus-worker"
}

// Start resolves the target sprint and spawns the worker fleet. A second
// call while running returns ErrAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	sprintID := o.workerCfg.SprintID
	if sprintID == "" && o.resolver != nil {
		sprint, err := o.resolver.GetActiveSprint(ctx)
		if err != nil {
			o.logger.Warn("cannot resolve active sprint, running whole-workspace", zap.Error(err))
		} else if sprint != nil {
			sprintID = sprint.ID
		}
	}

	o.logger.Info("orchestrator starting",
		zap.Int("workers", o.workerCount),
		zap.String("sprint_id", sprintID),
		zap.String("worker_binary", o.binaryPath))
	o.emit(Event{Type: EventStarted})

	o.group = &errgroup.Group{}
	for i := 0; i < o.workerCount; i++ {
		agentID := worker.NewAgentID()
		proc, err := o.spawn(agentID, sprintID)
		if err != nil {
			o.emit(Event{Type: EventError, AgentID: agentID, Err: err})
			o.killAllLocked()
			return fmt.Errorf("spawn worker %s: %w", agentID, err)
		}
		o.procs = append(o.procs, proc)
		o.emit(Event{Type: EventAgentSpawned, AgentID: agentID})

		o.group.Go(func() error {
			o.superviseWorker(proc)
			return nil
		})
	}

	o.running = true
	return nil
}

// spawn starts one worker subprocess with the full flag set. Worker stdout
// carries the NDJSON event stream and is forwarded verbatim; stderr lines
// are prefixed with the agent id.
func (o *Orchestrator) spawn(agentID, sprintID string) (*workerProc, error) {
	args := []string{
		"--project", o.workerCfg.ProjectPath,
		"--api-url", o.workerCfg.APIURL,
		"--workspace", o.workerCfg.WorkspaceID,
		"--agent-id", agentID,
	}
	if sprintID != "" {
		args = append(args, "--sprint", sprintID)
	}
	if o.workerCfg.Model != "" {
		args = append(args, "--model", o.workerCfg.Model)
	}
	if o.workerCfg.PollInterval > 0 {
		args = append(args, "--poll-interval", o.workerCfg.PollInterval.String())
	}
	if o.workerCfg.MaxTasks > 0 {
		args = append(args, "--max-tasks", strconv.Itoa(o.workerCfg.MaxTasks))
	}
	if o.workerCfg.MaxEmptyPolls > 0 {
		args = append(args, "--max-empty-polls", strconv.Itoa(o.workerCfg.MaxEmptyPolls))
	}

	// exec.Command rather than CommandContext: shutdown is driven by Stop,
	// not by context cancellation sending SIGKILL mid-task.
	cmd := exec.Command(o.binaryPath, args...)
	cmd.Dir = o.workerCfg.ProjectPath
	// The API key travels in the environment, not argv, so it never shows
	// up in process listings.
	cmd.Env = append(os.Environ(), "LOCUS_API_KEY="+o.workerCfg.APIKey)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
		Setpgid:   true,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	o.logger.Info("worker spawned", zap.String("agent_id", agentID), zap.Int("pid", cmd.Process.Pid))

	go forwardStdout(os.Stdout, stdout)
	go forwardStderr(os.Stderr, agentID, stderr)

	return &workerProc{agentID: agentID, cmd: cmd}, nil
}

// superviseWorker waits for one worker to exit and reports the outcome.
// A failed worker never aborts its peers.
func (o *Orchestrator) superviseWorker(proc *workerProc) {
	err := proc.cmd.Wait()
	exitCode := proc.cmd.ProcessState.ExitCode()

	if err != nil || exitCode != 0 {
		o.mu.Lock()
		o.failed++
		o.mu.Unlock()
		o.logger.Error("worker failed",
			zap.String("agent_id", proc.agentID),
			zap.Int("exit_code", exitCode),
			zap.Error(err))
	} else {
		o.logger.Info("worker completed", zap.String("agent_id", proc.agentID))
	}
	o.emit(Event{Type: EventAgentCompleted, AgentID: proc.agentID, ExitCode: exitCode, Err: err})
}

// Wait blocks until every worker has exited. It returns an error when any
// worker exited non-zero.
func (o *Orchestrator) Wait() error {
	o.mu.Lock()
	group := o.group
	o.mu.Unlock()
	if group == nil {
		return nil
	}
	_ = group.Wait()

	o.mu.Lock()
	failed := o.failed
	o.running = false
	o.mu.Unlock()

	o.emit(Event{Type: EventStopped})
	if failed > 0 {
		return fmt.Errorf("%d worker(s) failed", failed)
	}
	return nil
}

// Stop force-kills every worker that is still running and clears the
// running flag so the orchestrator can be started again. Workers are
// single-task crash-safe: the server re-queues anything left in progress.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.killAllLocked()
	o.running = false
}

func (o *Orchestrator) killAllLocked() {
	for _, proc := range o.procs {
		if proc.cmd.Process == nil || proc.cmd.ProcessState != nil {
			continue
		}
		o.logger.Info("killing worker", zap.String("agent_id", proc.agentID), zap.Int("pid", proc.cmd.Process.Pid))
		_ = proc.cmd.Process.Kill()
	}
}

func (o *Orchestrator) emit(event Event) {
	if o.onEvent != nil {
		o.onEvent(event)
	}
}

// forwardStdout relays the worker's NDJSON stream byte-for-byte so
// downstream consumers can parse it unchanged.
func forwardStdout(w io.Writer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
}

// forwardStderr relays worker diagnostics with an agent id prefix.
func forwardStderr(w io.Writer, agentID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintf(w, "[%s] ERR: %s\n", agentID, scanner.Text())
	}
}
