// Package stream turns a vendor's incremental HTTP response into a lazy
// sequence of text fragments.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
)

// Parser is the part of a provider.Adapter the decoder relies on.
type Parser interface {
	Kind() provider.Kind
	Framing() provider.Framing
	ParseFrame(payload []byte) (string, error)
}

// ErrConsumed is yielded when a decoded sequence is ranged over twice.
var ErrConsumed = errors.New("stream already consumed")

// maxFrameSize bounds a single line. bufio.Scanner's 64 KiB default is too
// small for long completions from some vendors.
const maxFrameSize = 1 << 20

// Decode reads newline-delimited frames from r and yields every non-empty
// text fragment in arrival order. Frames may be split across reads or share
// one read; the scanner reassembles them.
//
// Malformed frames are logged and skipped. The sequence ends when r reports
// EOF. A read failure, a cancelled ctx, or an in-band vendor error is yielded
// once as a non-nil error and ends the sequence. The sequence can be ranged
// over only once.
func Decode(ctx context.Context, r io.Reader, p Parser) iter.Seq2[string, error] {
	var used atomic.Bool
	framing := p.Framing()
	kind := p.Kind()

	return func(yield func(string, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield("", ErrConsumed)
			return
		}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			payload, ok := framePayload(scanner.Bytes(), framing)
			if !ok {
				continue
			}
			if framing.DoneSentinel != "" && string(payload) == framing.DoneSentinel {
				continue
			}

			text, err := p.ParseFrame(payload)
			if err != nil {
				if errors.Is(err, provider.ErrMalformedFrame) {
					logger.Warn("skipping malformed frame", "provider", kind, "err", err)
					continue
				}
				yield("", err)
				return
			}
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield("", ctxErr)
				return
			}
			yield("", &provider.TransportError{Provider: kind, Err: err})
		}
	}
}

// framePayload extracts the frame body from one line. Lines that are blank,
// or lack the required prefix (SSE "event:" and comment lines), are not frames.
func framePayload(line []byte, f provider.Framing) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	if f.DataPrefix == "" {
		return line, true
	}
	if !bytes.HasPrefix(line, []byte(f.DataPrefix)) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(f.DataPrefix):])
	return payload, len(payload) > 0
}
