// Package imagedata turns the accepted screenshot sources into a byte buffer.
package imagedata

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/devicelab-dev/visual-diff/pkg/core"
)

// Producer yields encoded image bytes on demand, e.g. a deferred capture.
type Producer func(ctx context.Context) ([]byte, error)

// chunkSize is how much of a stream is read between context checks.
const chunkSize = 32 * 1024

// ToBuffer returns the encoded bytes behind src. Accepted sources are []byte,
// io.Reader (drained until EOF) and Producer. Any other type, including nil,
// yields core.ErrInvalidImageData.
func ToBuffer(ctx context.Context, src any) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		if v == nil {
			return nil, core.ErrInvalidImageData.WithMessage("image data is a nil byte slice")
		}
		return v, nil
	case Producer:
		return produce(ctx, v)
	case func(context.Context) ([]byte, error):
		return produce(ctx, v)
	case io.Reader:
		return drain(ctx, v)
	case nil:
		return nil, core.ErrInvalidImageData
	default:
		return nil, core.ErrInvalidImageData.WithDetails(map[string]interface{}{
			"type": fmt.Sprintf("%T", src),
		})
	}
}

func produce(ctx context.Context, p Producer) ([]byte, error) {
	if p == nil {
		return nil, core.ErrInvalidImageData
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p(ctx)
	if err != nil {
		return nil, fmt.Errorf("produce image data: %w", err)
	}
	return data, nil
}

// drain reads r to EOF, checking ctx between chunks. A reader that blocks
// inside Read is only interrupted if it honours ctx itself.
func drain(ctx context.Context, r io.Reader) ([]byte, error) {
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read image stream: %w", err)
		}
	}
}
