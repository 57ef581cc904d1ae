// Package console implements a line based stand-in for the speech recognizer
// that the plugin connects to during development.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/retroenv/retrohook/internal/bridge"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/sync/errgroup"
)

const maxLineSize = 64 * 1024

// Console prints the messages of a connected plugin and forwards input lines
// to it.
type Console struct {
	logger *log.Logger
	out    io.Writer
}

// New returns a console printing to out.
func New(logger *log.Logger, out io.Writer) *Console {
	return &Console{
		logger: logger,
		out:    out,
	}
}

// ReadLines sends every non empty line of r to the returned channel, which
// is closed at the end of r or when ctx is canceled.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// Serve handles one plugin connection until the plugin disconnects or ctx is
// canceled. The connection is closed on return. Input lines are forwarded
// unchanged.
func (c *Console) Serve(ctx context.Context, conn io.ReadWriteCloser, input <-chan string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.read(ctx, conn)
	})
	g.Go(func() error {
		return c.write(ctx, conn, input)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	err := g.Wait()
	c.logger.Info("Plugin disconnected")
	return err
}

func (c *Console) read(ctx context.Context, conn io.Reader) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(c.out, Describe(line)); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading from plugin: %w", err)
	}
	return nil
}

func (c *Console) write(ctx context.Context, conn io.Writer, input <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-input:
			if !ok {
				return nil
			}
			if bridge.Classify(line) == bridge.Malformed {
				c.logger.Warn("Forwarding line the plugin will drop", log.String("line", line))
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("writing to plugin: %w", err)
			}
		}
	}
}

// Describe formats a plugin message for display. Unknown lines are returned
// unchanged.
func Describe(line string) string {
	msg, ok := bridge.ParseMessage(line)
	if !ok {
		return line
	}

	var sb strings.Builder
	switch msg.Kind {
	case bridge.KindStartDialogue:
		fmt.Fprintf(&sb, "dialogue %d started", msg.ID)
		for i, field := range msg.Fields {
			fmt.Fprintf(&sb, "\n  %d: %s", i, field)
		}
	case bridge.KindSelected:
		fmt.Fprintf(&sb, "dialogue %d: line %d selected", msg.ID, msg.Index)
	case bridge.KindStopDialogue:
		sb.WriteString("dialogue stopped")
	case bridge.KindFavorites:
		fmt.Fprintf(&sb, "%d favorites", len(msg.Fields))
		for _, field := range msg.Fields {
			fmt.Fprintf(&sb, "\n  %s", field)
		}
	}
	return sb.String()
}
