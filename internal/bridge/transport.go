package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"

	"github.com/coder/websocket"
)

// Address schemes supported by Dial.
const (
	schemeTCP  = "tcp://"
	schemeWS   = "ws://"
	schemeWSS  = "wss://"
	schemePipe = "pipe:"
	schemeExec = "exec:"
)

// Dial connects to the recognizer at address. Supported forms are
// tcp://host:port, ws:// and wss:// URLs, pipe:\\.\pipe\name for a named
// pipe on Windows and exec:<command line> to start the recognizer as child
// process that is connected through its standard input and output.
// An address without scheme is dialed as TCP.
func Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	switch {
	case strings.HasPrefix(address, schemeWS), strings.HasPrefix(address, schemeWSS):
		c, _, err := websocket.Dial(ctx, address, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing websocket '%s': %w", address, err)
		}
		c.SetReadLimit(maxLineSize)
		return websocket.NetConn(context.Background(), c, websocket.MessageText), nil

	case strings.HasPrefix(address, schemePipe):
		return dialPipe(ctx, strings.TrimPrefix(address, schemePipe))

	case strings.HasPrefix(address, schemeExec):
		return startProcess(strings.TrimPrefix(address, schemeExec))

	default:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(address, schemeTCP))
		if err != nil {
			return nil, fmt.Errorf("dialing '%s': %w", address, err)
		}
		return conn, nil
	}
}

// process is a child process connected through its standard streams.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func startProcess(commandLine string) (io.ReadWriteCloser, error) {
	args := strings.Fields(commandLine)
	if len(args) == 0 {
		return nil, errors.New("missing recognizer command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting recognizer '%s': %w", args[0], err)
	}

	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
	}, nil
}

func (p *process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes the input of the child process and stops it.
func (p *process) Close() error {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil // killed
	}
	return err
}
