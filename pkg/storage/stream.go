package storage

import (
	"context"
	"io"
)

// ContextReader returns a reader that fails with the context error once ctx
// is done. Adapters wrap incoming write streams with it so a disconnected
// client stops the copy at the next chunk boundary.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// CopyBufferSize is the chunk size adapters use when streaming content.
const CopyBufferSize = 256 * 1024
