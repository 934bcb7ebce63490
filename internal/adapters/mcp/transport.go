package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/clara-assistant/clara/internal/domain"
)

// Transport carries JSON-RPC messages to and from one MCP server.
type Transport interface {
	Send(ctx context.Context, message any) error
	// Receive yields raw messages; a Message with Error set reports a
	// transport failure.
	Receive() <-chan Message
	Close() error
	IsConnected() bool
}

// Message is one raw payload off the wire.
type Message struct {
	Data  []byte
	Error error
}

// StdioTransport runs the server as a child process and exchanges
// newline-delimited JSON over its stdin/stdout.
type StdioTransport struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	receiveCh chan Message
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup // goroutines that send on receiveCh
	mu        sync.RWMutex
	connected bool
}

var shellMetaChars = regexp.MustCompile(`[;&|$` + "`" + `\(\)<>]`)

// validateCommand resolves the configured command and rejects anything
// that smells like shell injection: metacharacters in the command or
// its arguments, and flags that make common tools execute code.
func validateCommand(command string, args []string) (string, error) {
	if command == "" {
		return "", domain.Errorf(domain.KindConfig, "command cannot be empty")
	}
	if shellMetaChars.MatchString(command) {
		return "", domain.Errorf(domain.KindConfig, "command contains invalid characters")
	}

	cmdPath, err := exec.LookPath(command)
	if err != nil {
		return "", domain.Errorf(domain.KindConfig, "command not found: %s", command)
	}

	for i, arg := range args {
		if shellMetaChars.MatchString(arg) {
			return "", domain.Errorf(domain.KindConfig, "argument %d contains invalid characters", i)
		}
		lower := strings.ToLower(arg)
		if strings.HasPrefix(lower, "--exec") ||
			strings.HasPrefix(lower, "--config=") ||
			strings.HasPrefix(lower, "-c=") {
			return "", domain.Errorf(domain.KindConfig, "argument %d contains potentially dangerous flag", i)
		}
	}
	return cmdPath, nil
}

func NewStdioTransport(command string, args []string, env []string) (*StdioTransport, error) {
	cmdPath, err := validateCommand(command, args)
	if err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	cmd := exec.Command(cmdPath, args...)
	if env != nil {
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	t := &StdioTransport{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		receiveCh: make(chan Message, 10),
		closeCh:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	t.wg.Add(2) // readLoop and monitorProcess send on receiveCh
	go t.readLoop()
	go t.drainStderr()
	go t.monitorProcess()

	return t, nil
}

func (t *StdioTransport) Send(ctx context.Context, message any) error {
	if !t.IsConnected() {
		return domain.Errorf(domain.KindTransport, "transport not connected")
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Newline-delimited JSON framing.
	data = append(data, '\n')
	if _, err := t.stdin.Write(data); err != nil {
		return domain.Errorf(domain.KindTransport, "failed to write message: %w", err)
	}
	return nil
}

func (t *StdioTransport) Receive() <-chan Message {
	return t.receiveCh
}

func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)

		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()

		if t.stdin != nil {
			t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			if killErr := t.cmd.Process.Kill(); killErr != nil {
				err = killErr
			}
		}
		if t.stdout != nil {
			t.stdout.Close()
		}
		if t.stderr != nil {
			t.stderr.Close()
		}

		// Close receiveCh only once the senders are gone, without
		// blocking Close on them.
		go func() {
			t.wg.Wait()
			close(t.receiveCh)
		}()
	})
	return err
}

func (t *StdioTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *StdioTransport) readLoop() {
	defer t.wg.Done()

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				select {
				case t.receiveCh <- Message{Error: domain.Errorf(domain.KindTransport, "scanner error: %w", err)}:
				case <-t.closeCh:
				}
			}
			return
		}

		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		// The scanner reuses its buffer between lines.
		payload := make([]byte, len(data))
		copy(payload, data)

		select {
		case t.receiveCh <- Message{Data: payload}:
		case <-t.closeCh:
			return
		}
	}
}

func (t *StdioTransport) drainStderr() {
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			log.Printf("[StdioTransport] server stderr: command=%s, line=%s", t.cmd.Path, line)
		}
	}
}

func (t *StdioTransport) monitorProcess() {
	defer t.wg.Done()

	if err := t.cmd.Wait(); err != nil {
		t.mu.Lock()
		if t.connected {
			t.connected = false
			select {
			case t.receiveCh <- Message{Error: domain.Errorf(domain.KindTransport, "process exited: %w", err)}:
			case <-t.closeCh:
			}
		}
		t.mu.Unlock()
	}
}
