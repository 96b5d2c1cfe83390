package diarization

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

//go:embed assets/pyannote_diarize.py
var helperScript []byte

const (
	defaultCheckTimeout = 2 * time.Minute
	stderrTailSize      = 4 << 10
)

// RawTurn is one speaker turn as reported by the diarization model.
type RawTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Runner runs a diarization model over a WAV file.
type Runner interface {
	Available() bool
	Run(ctx context.Context, wavPath string) ([]RawTurn, error)
}

type helperRequest struct {
	Audio string `json:"audio"`
}

type helperResponse struct {
	Turns []RawTurn `json:"turns"`
	Error string    `json:"error"`
}

// HelperRunner keeps one pyannote helper process alive and sends it one request per
// line. The model is loaded once when the process starts. A broken process is
// discarded and the next call starts a fresh one.
type HelperRunner struct {
	// Token is handed to the helper through the HF_TOKEN environment variable.
	Token string
	// CheckTimeout bounds the dependency check run by Available.
	CheckTimeout time.Duration

	python string
	model  string

	checkOnce sync.Once
	available bool

	mu     sync.Mutex
	dir    string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailBuffer
	done   chan struct{}
}

func NewHelperRunner(python, model string) *HelperRunner {
	if python == "" {
		python = "python3"
	}
	return &HelperRunner{
		python:       python,
		model:        model,
		CheckTimeout: defaultCheckTimeout,
	}
}

// Available runs the helper's dependency check once and caches the result. An
// interpreter without pyannote installed is reported as unavailable.
func (h *HelperRunner) Available() bool {
	h.checkOnce.Do(func() {
		if _, err := exec.LookPath(h.python); err != nil {
			return
		}

		h.mu.Lock()
		script, err := h.script()
		h.mu.Unlock()
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.CheckTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, h.python, script, "--check")
		cmd.Env = os.Environ()
		h.available = cmd.Run() == nil
	})
	return h.available
}

func (h *HelperRunner) Run(ctx context.Context, wavPath string) ([]RawTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil {
		if err := h.start(); err != nil {
			return nil, err
		}
	}

	req, err := json.Marshal(helperRequest{Audio: wavPath})
	if err != nil {
		return nil, err
	}
	if _, err := h.stdin.Write(append(req, '\n')); err != nil {
		return nil, h.broken(fmt.Errorf("send helper request: %w", err))
	}

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	stdout := h.stdout
	go func() {
		line, err := stdout.ReadBytes('\n')
		ch <- result{line: line, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		h.stop()
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.err != nil {
		return nil, h.broken(fmt.Errorf("read helper response: %w", res.err))
	}

	var resp helperResponse
	if err := json.Unmarshal(res.line, &resp); err != nil {
		h.stop()
		return nil, fmt.Errorf("parse helper output: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("diarization helper failed: %s", resp.Error)
	}
	return resp.Turns, nil
}

// Close stops the helper process and removes its working directory.
func (h *HelperRunner) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stop()
	if h.dir == "" {
		return nil
	}
	err := os.RemoveAll(h.dir)
	h.dir = ""
	return err
}

// script writes the embedded helper into the runner's working directory. Callers
// hold h.mu.
func (h *HelperRunner) script() (string, error) {
	if h.dir == "" {
		dir, err := os.MkdirTemp("", "diarize-helper-*")
		if err != nil {
			return "", fmt.Errorf("create helper dir: %w", err)
		}
		h.dir = dir
	}

	path := filepath.Join(h.dir, "pyannote_diarize.py")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, helperScript, 0o755); err != nil {
		return "", fmt.Errorf("write helper script: %w", err)
	}
	return path, nil
}

func (h *HelperRunner) start() error {
	script, err := h.script()
	if err != nil {
		return err
	}

	args := []string{script, "--serve"}
	if h.model != "" {
		args = append(args, "--model", h.model)
	}

	cmd := exec.Command(h.python, args...)
	cmd.Env = append(os.Environ(), "HF_TOKEN="+h.Token)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = bufio.NewReader(stdout)
	h.stderr = stderr
	h.done = done
	return nil
}

// broken discards the helper process and prefers its stderr output over err.
func (h *HelperRunner) broken(err error) error {
	stderr := h.stderr
	h.stop()
	if tail := stderr.String(); tail != "" {
		return fmt.Errorf("diarization helper failed: %s", tail)
	}
	return err
}

// stop kills the running helper, if any. Callers hold h.mu.
func (h *HelperRunner) stop() {
	if h.cmd == nil {
		return
	}
	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	<-h.done

	h.cmd = nil
	h.stdin = nil
	h.stdout = nil
	h.done = nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

var (
	_ Runner    = (*HelperRunner)(nil)
	_ io.Closer = (*HelperRunner)(nil)
)
