package transfer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
)

// ErrIdleTimeout is returned when a peer sends or accepts no data for
// longer than the idle timeout. It classifies as IOFailure.
var ErrIdleTimeout = fmt.Errorf("stream idle timeout: %w", storage.ErrIOFailure)

// deadliner is the subset of http.ResponseController used here.
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// IdleReader wraps a request body so that every Read must make progress
// within timeout. The deadline is set on the underlying connection through
// http.ResponseController; writers that do not support deadlines (such as
// httptest.ResponseRecorder) disable the timeout silently.
//
// A non-positive timeout returns r unchanged.
func IdleReader(w http.ResponseWriter, r io.Reader, timeout time.Duration) io.Reader {
	if timeout <= 0 {
		return r
	}
	return &idleReader{r: r, rc: http.NewResponseController(w), timeout: timeout}
}

type idleReader struct {
	r        io.Reader
	rc       deadliner
	timeout  time.Duration
	disabled bool
}

func (ir *idleReader) Read(p []byte) (int, error) {
	if !ir.disabled {
		if err := ir.rc.SetReadDeadline(time.Now().Add(ir.timeout)); err != nil {
			ir.disabled = true
		}
	}

	n, err := ir.r.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrIdleTimeout
	}
	return n, err
}

// IdleWriter wraps a response writer so that every Write must complete
// within timeout. See IdleReader.
func IdleWriter(w http.ResponseWriter, timeout time.Duration) io.Writer {
	if timeout <= 0 {
		return w
	}
	return &idleWriter{w: w, rc: http.NewResponseController(w), timeout: timeout}
}

type idleWriter struct {
	w        io.Writer
	rc       deadliner
	timeout  time.Duration
	disabled bool
}

func (iw *idleWriter) Write(p []byte) (int, error) {
	if !iw.disabled {
		if err := iw.rc.SetWriteDeadline(time.Now().Add(iw.timeout)); err != nil {
			iw.disabled = true
		}
	}

	n, err := iw.w.Write(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrIdleTimeout
	}
	return n, err
}
