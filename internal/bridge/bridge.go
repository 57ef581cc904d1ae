// Package bridge connects the host to an external speech recognizer over a
// line based byte stream.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/retroenv/retrogolib/log"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when sending on a bridge whose connection ended.
var ErrClosed = errors.New("bridge connection closed")

// DefaultOutboundBuffer is the default number of outbound messages that can
// be pending before further messages are dropped.
const DefaultOutboundBuffer = 64

const maxLineSize = 64 * 1024

// Bridge reads classified lines from the recognizer into two queues and
// writes messages to it. The reader and writer run in their own goroutines,
// the queues and the outbound channel are the only state they share with
// the host thread.
type Bridge struct {
	logger   *log.Logger
	conn     io.ReadWriteCloser
	commands *Queue[string]
	equips   *Queue[string]
	classify func(string) Stream
	out      chan string
	done     chan struct{}
	closed   atomic.Bool

	dialogueID int // host thread only
}

// Option configures a bridge.
type Option func(*Bridge)

// WithClassifier replaces the predicate that routes inbound lines.
func WithClassifier(classify func(string) Stream) Option {
	return func(b *Bridge) {
		b.classify = classify
	}
}

// WithOutboundBuffer sets the number of outbound messages that can be pending.
func WithOutboundBuffer(size int) Option {
	return func(b *Bridge) {
		if size > 0 {
			b.out = make(chan string, size)
		}
	}
}

// New returns a bridge over conn that pushes inbound lines onto the given
// queues. Run starts the transfer.
func New(logger *log.Logger, conn io.ReadWriteCloser, commands, equips *Queue[string], options ...Option) *Bridge {
	b := &Bridge{
		logger:   logger,
		conn:     conn,
		commands: commands,
		equips:   equips,
		classify: Classify,
		out:      make(chan string, DefaultOutboundBuffer),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Run transfers lines until the connection closes or ctx is canceled, which
// closes the connection. A connection closed by the recognizer is not an
// error.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.read(ctx)
	})
	g.Go(func() error {
		return b.write(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		b.closed.Store(true)
		_ = b.conn.Close() // unblocks the reader
		return nil
	})

	err := g.Wait()
	b.logger.Info("Recognizer connection closed")
	close(b.done)
	return err
}

// Done is closed after Run returned.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) read(ctx context.Context) error {
	r := bufio.NewReaderSize(b.conn, 4096)
	var line []byte
	oversized := false

	for {
		chunk, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// line continues past the buffer, keep collecting until the
			// newline unless the line is already too long to be valid
			if !oversized {
				line = append(line, chunk...)
				if len(line) > maxLineSize {
					oversized = true
					line = line[:0]
				}
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading from recognizer: %w", err)
		}

		text := strings.TrimRight(string(append(line, chunk...)), "\r\n")
		if oversized || len(text) > maxLineSize {
			b.logger.Debug("Dropping oversized line", log.Int("limit", maxLineSize))
		} else {
			b.dispatch(text)
		}
		line = line[:0]
		oversized = false

		if err != nil {
			return nil
		}
	}
}

func (b *Bridge) dispatch(line string) {
	if line == "" {
		return
	}

	switch b.classify(line) {
	case Commands:
		b.commands.Push(line)
	case Equips:
		b.equips.Push(line)
	default:
		b.logger.Debug("Dropping malformed line", log.String("line", line))
	}
}

func (b *Bridge) write(ctx context.Context) error {
	w := bufio.NewWriter(b.conn)
	for {
		select {
		case <-ctx.Done():
			return nil

		case line := <-b.out:
			if _, err := w.WriteString(line + "\n"); err != nil {
				return b.writeError(ctx, err)
			}
			if len(b.out) > 0 {
				continue // batch pending messages into one write
			}
			if err := w.Flush(); err != nil {
				return b.writeError(ctx, err)
			}
		}
	}
}

func (b *Bridge) writeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("writing to recognizer: %w", err)
}

// Send queues a message for the recognizer without blocking. If the
// outbound buffer is full the message is dropped.
func (b *Bridge) Send(line string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.out <- line:
		return nil
	default:
		b.logger.Warn("Outbound buffer full, dropping message", log.String("line", line))
		return nil
	}
}

// PopCommand returns the oldest pending command line without blocking.
func (b *Bridge) PopCommand() (string, bool) {
	return b.commands.Pop()
}

// PopEquipAction returns the oldest pending equip action without blocking.
func (b *Bridge) PopEquipAction() (string, bool) {
	return b.equips.Pop()
}

// StartDialogue announces newly visible dialogue lines and returns the
// identifier that selections for them carry.
func (b *Bridge) StartDialogue(lines []string) (int, error) {
	b.dialogueID++
	return b.dialogueID, b.Send(FormatStartDialogue(b.dialogueID, lines))
}

// DialogueID returns the identifier of the last announced dialogue.
func (b *Bridge) DialogueID() int {
	return b.dialogueID
}

// StopDialogue tells the recognizer that the dialogue ended.
func (b *Bridge) StopDialogue() error {
	return b.Send(StopDialogue)
}

// ReportSelection sends the currently selected line of the dialogue.
func (b *Bridge) ReportSelection(index int) error {
	return b.Send(FormatSelected(b.dialogueID, index))
}

// PublishFavorites sends the favorites records.
func (b *Bridge) PublishFavorites(entries []string) error {
	return b.Send(FormatFavorites(entries))
}
