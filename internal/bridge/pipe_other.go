//go:build !windows

package bridge

import (
	"context"
	"errors"
	"io"
)

func dialPipe(context.Context, string) (io.ReadWriteCloser, error) {
	return nil, errors.New("named pipes are only supported on windows")
}
