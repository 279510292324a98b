package ui

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errInterrupted reports that a read was abandoned because the countdown
// expired. The outstanding request is kept and served to the next read, so
// no typed line is lost.
var errInterrupted = errors.New("read interrupted")

type lineResult struct {
	text string
	err  error
}

type lineRequest struct {
	secret bool
	resp   chan lineResult
}

// input serializes reads from the interactive stream through one goroutine,
// so a screen can wait on a line and a timer at the same time.
type input struct {
	reqs    chan lineRequest
	pending chan lineResult
}

// newInput starts the reader goroutine. When r is a terminal, secret reads
// go through term.ReadPassword so passwords are never echoed.
func newInput(r io.Reader) *input {
	scanner := bufio.NewScanner(r)

	var fd int = -1
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}

	in := &input{reqs: make(chan lineRequest)}
	go func() {
		for req := range in.reqs {
			var res lineResult
			switch {
			case req.secret && fd >= 0:
				b, err := term.ReadPassword(fd)
				res = lineResult{text: string(b), err: err}
			case scanner.Scan():
				res = lineResult{text: scanner.Text()}
			default:
				if err := scanner.Err(); err != nil {
					res = lineResult{err: err}
				} else {
					res = lineResult{err: io.EOF}
				}
			}
			req.resp <- res
		}
	}()
	return in
}

// readLine returns the next input line, trimmed. interrupt may be nil; when
// it fires first, errInterrupted is returned and the outstanding read is
// reused by the next call.
func (in *input) readLine(ctx context.Context, interrupt <-chan struct{}) (string, error) {
	resp := in.pending
	if resp == nil {
		resp = make(chan lineResult, 1)
		select {
		case in.reqs <- lineRequest{resp: resp}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	in.pending = nil

	select {
	case res := <-resp:
		return strings.TrimSpace(res.text), res.err
	case <-interrupt:
		in.pending = resp
		return "", errInterrupted
	case <-ctx.Done():
		in.pending = resp
		return "", ctx.Err()
	}
}

// readSecret reads a line without echo when the stream is a terminal.
func (in *input) readSecret(ctx context.Context) (string, error) {
	resp := make(chan lineResult, 1)
	select {
	case in.reqs <- lineRequest{secret: true, resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case res := <-resp:
		return strings.TrimSpace(res.text), res.err
	case <-ctx.Done():
		in.pending = resp
		return "", ctx.Err()
	}
}
