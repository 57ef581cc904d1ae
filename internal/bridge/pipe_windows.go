//go:build windows

package bridge

import (
	"context"
	"fmt"
	"io"

	"github.com/Microsoft/go-winio"
)

func dialPipe(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dialing pipe '%s': %w", path, err)
	}
	return conn, nil
}
