package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// SplitMbox streams a classic mbox file and calls handle once per raw RFC 822
// message, without ever holding the whole archive in memory. Messages are
// delimited by "From " lines at the start of a line, per the mboxo format
// that mail exports produce.
//
// handle receives the raw message bytes without the leading "From " envelope
// line. Returning an error from handle stops the scan.
func SplitMbox(ctx context.Context, r io.Reader, handle func(raw []byte) error) (int, error) {
	if ctx == nil {
		return 0, errors.New("SplitMbox: ctx is nil")
	}
	if r == nil {
		return 0, errors.New("SplitMbox: reader is nil")
	}
	if handle == nil {
		return 0, errors.New("SplitMbox: handle is nil")
	}

	// Exports are commonly one enormous file; read with a generous buffer.
	br := bufio.NewReaderSize(r, 1<<20)

	var (
		current bytes.Buffer
		started bool
		count   int
	)

	flush := func() error {
		if !started || current.Len() == 0 {
			current.Reset()
			return nil
		}
		msg := make([]byte, current.Len())
		copy(msg, current.Bytes())
		current.Reset()
		count++
		return handle(msg)
	}

	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if bytes.HasPrefix(line, []byte("From ")) {
				if ferr := flush(); ferr != nil {
					return count, ferr
				}
				started = true
				// Envelope line itself is dropped; headers follow.
			} else if started {
				current.Write(line)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if ferr := flush(); ferr != nil {
					return count, ferr
				}
				return count, nil
			}
			return count, fmt.Errorf("SplitMbox: read: %w", err)
		}
	}
}
