package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"unicode/utf8"
)

// maxLineBytes bounds a single worker message. Larger lines surface as a
// messageerror and end the stream for that pipe.
const maxLineBytes = 1 << 20

// ExecRuntime runs each unit as a child process.
//
// Protocol: the init data is written to the child's stdin as one JSON line.
// Every stdout line is one message payload; stderr lines surface as runtime
// errors. Post writes one line to stdin, so the cancel token arrives on the
// same channel the worker already reads.
type ExecRuntime struct{}

func NewExecRuntime() *ExecRuntime { return &ExecRuntime{} }

func (r *ExecRuntime) Spawn(ctx context.Context, path string, init InitData) (Handle, error) {
	cmd := exec.CommandContext(ctx, path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
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
		return nil, fmt.Errorf("spawn %s: %w", path, err)
	}

	h := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan Event, 16),
	}

	// Init line first so the worker can read it before anything else.
	if b, err := json.Marshal(init); err == nil {
		_ = h.writeLine(string(b))
	}

	h.events <- Event{Kind: EventOnline}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		h.readMessages(stdout)
	}()
	go func() {
		defer pipes.Done()
		h.readErrors(stderr)
	}()

	go func() {
		pipes.Wait()
		err := cmd.Wait()
		code := 0
		if err != nil {
			code = 1
			if ee, ok := err.(*exec.ExitError); ok {
				code = ee.ExitCode()
			}
		}
		h.events <- Event{Kind: EventExit, Code: code}
		close(h.events)
	}()

	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	events chan Event

	wmu   sync.Mutex
	stdin io.WriteCloser
}

func (h *execHandle) Events() <-chan Event { return h.events }

func (h *execHandle) Post(payload string) error {
	return h.writeLine(payload)
}

func (h *execHandle) writeLine(s string) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	_, err := io.WriteString(h.stdin, s+"\n")
	return err
}

func (h *execHandle) Terminate() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

func (h *execHandle) readMessages(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		if !utf8.ValidString(line) {
			h.events <- Event{Kind: EventMessageError, Err: fmt.Errorf("message is not valid UTF-8")}
			continue
		}
		h.events <- Event{Kind: EventMessage, Payload: line}
	}
	if err := sc.Err(); err != nil {
		h.events <- Event{Kind: EventMessageError, Err: fmt.Errorf("reading messages: %w", err)}
	}
}

func (h *execHandle) readErrors(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		h.events <- Event{Kind: EventError, Err: fmt.Errorf("%s", sc.Text())}
	}
}
