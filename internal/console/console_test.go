package console

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrohook/internal/bridge"
)

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{line: "START_DIALOGUE|1|Hello|Goodbye", want: "dialogue 1 started\n  0: Hello\n  1: Goodbye"},
		{line: "SELECTED|1|1", want: "dialogue 1: line 1 selected"},
		{line: "STOP_DIALOGUE", want: "dialogue stopped"},
		{line: "FAVORITES|Bow,1,0,0,41", want: "1 favorites\n  Bow,1,0,0,41"},
		{line: "something else", want: "something else"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.line))
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	var out bytes.Buffer
	c := New(log.NewTestLogger(t), &out)

	input := make(chan string, 1)
	input <- "select 1"
	result := make(chan error, 1)
	go func() {
		result <- c.Serve(context.Background(), local, input)
	}()

	reader := bufio.NewReader(remote)
	assert.NoError(t, remote.SetDeadline(time.Now().Add(5*time.Second)))
	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "select 1\n", line)

	_, err = io.WriteString(remote, bridge.FormatStartDialogue(1, []string{"Hello"})+"\n"+bridge.StopDialogue+"\n")
	assert.NoError(t, err)
	assert.NoError(t, remote.Close())

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console did not stop")
	}
	assert.Equal(t, "dialogue 1 started\n  0: Hello\ndialogue stopped\n", out.String())
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	lines := ReadLines(context.Background(), strings.NewReader("select 1\n\n  COMMAND|tgm  \n"))
	var got []string
	for line := range lines {
		got = append(got, line)
	}
	assert.Equal(t, []string{"select 1", "COMMAND|tgm"}, got)
}

func TestListenTCP(t *testing.T) {
	t.Parallel()

	l, err := Listen("tcp://127.0.0.1:0")
	assert.NoError(t, err)
	defer func() { _ = l.Close() }()

	go func() {
		conn, err := bridge.Dial(context.Background(), "tcp://"+l.Addr().String())
		if err != nil {
			return
		}
		_, _ = io.WriteString(conn, "STOP_DIALOGUE\n")
		_ = conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := l.Accept(ctx)
	assert.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "STOP_DIALOGUE\n", line)
	assert.NoError(t, conn.Close())
}

func TestListenWebSocket(t *testing.T) {
	t.Parallel()

	l, err := Listen("ws://127.0.0.1:0")
	assert.NoError(t, err)
	defer func() { _ = l.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialed := make(chan io.ReadWriteCloser, 1)
	go func() {
		conn, err := bridge.Dial(ctx, "ws://"+l.Addr().String())
		if err != nil {
			close(dialed)
			return
		}
		dialed <- conn
	}()

	conn, err := l.Accept(ctx)
	assert.NoError(t, err)
	plugin, ok := <-dialed
	assert.True(t, ok)

	_, err = io.WriteString(plugin, "STOP_DIALOGUE\n")
	assert.NoError(t, err)
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "STOP_DIALOGUE\n", line)

	// the close handshake needs the console side to read the close frame
	drained := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, reader)
		drained <- err
	}()

	assert.NoError(t, plugin.Close())
	assert.NoError(t, <-drained)
	_ = conn.Close()
}

func TestAcceptCanceled(t *testing.T) {
	t.Parallel()

	l, err := Listen("127.0.0.1:0")
	assert.NoError(t, err)
	defer func() { _ = l.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
