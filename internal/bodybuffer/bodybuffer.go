// Package bodybuffer implements the Buffer Accumulator (C4) and
// Decompressor (C5): it reads the upstream response body to completion,
// decompressing it if needed, while enforcing the configured max_size
// bound and retaining the exact original bytes for fail-open replay.
package bodybuffer

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/rickcrawford/markdowninthemiddle/internal/mderrors"
)

// Decompress returns a reader that decodes body according to the
// (case-insensitive) Content-Encoding value. The caller is responsible
// for closing the returned reader if it implements io.Closer.
func Decompress(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return gzip.NewReader(body)
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return brotli.NewReader(body), nil
	case "identity", "":
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported content-encoding: %s", encoding)
	}
}

// Result is the outcome of an accumulation attempt.
type Result struct {
	// Buffer is the (possibly decompressed) body, bounded by max_size.
	// Empty when accumulation failed before a decoded form existed.
	Buffer []byte
	// BufferedOriginal is the exact upstream (wire) bytes, for fail-open
	// replay, whenever they were fully read within max_size. It aliases
	// Buffer when no decompression occurred.
	BufferedOriginal []byte
	// Replay reconstructs the exact original body when the wire bytes
	// themselves overran max_size before BufferedOriginal could be
	// captured in full: the already-consumed prefix followed by the
	// still-unread remainder of upstream. Forwarding it costs no more
	// memory than the small prefix already in hand.
	Replay io.Reader
}

// Accumulate reads upstream to completion. When encoding names a
// supported compression, the wire bytes are retained in
// Result.BufferedOriginal while Result.Buffer holds the decompressed
// form; otherwise both fields alias the same bytes. Exceeding maxSize on
// the wire form sets Result.Replay so the caller can bypass without
// re-buffering the whole body (spec.md §4.4's bypass transition);
// exceeding it on the decompressed form leaves BufferedOriginal intact
// for a buffered replay. Both cases raise ResourceLimit; a malformed
// compressed stream raises DecompressError (§4.5).
func Accumulate(upstream io.Reader, encoding string, maxSize int64) (*Result, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))

	prefix, overran, err := readBounded(upstream, maxSize)
	if err != nil {
		return nil, mderrors.Wrap(mderrors.InternalError, "reading upstream body", err)
	}
	if overran {
		return &Result{Replay: io.MultiReader(bytes.NewReader(prefix), upstream)},
			mderrors.New(mderrors.ResourceLimit, "body exceeds max_size")
	}
	original := prefix

	if encoding == "" || encoding == "identity" {
		return &Result{Buffer: original, BufferedOriginal: original}, nil
	}

	decoder, err := Decompress(bytes.NewReader(original), encoding)
	if err != nil {
		return &Result{BufferedOriginal: original},
			mderrors.Wrap(mderrors.DecompressError, "unsupported content-encoding "+encoding, err)
	}
	if closer, ok := decoder.(io.Closer); ok {
		defer closer.Close()
	}

	decoded, overran2, err2 := readBounded(decoder, maxSize)
	if err2 != nil {
		return &Result{BufferedOriginal: original},
			mderrors.Wrap(mderrors.DecompressError, "corrupt "+encoding+" stream", err2)
	}
	if overran2 {
		return &Result{BufferedOriginal: original},
			mderrors.New(mderrors.ResourceLimit, "decompressed body exceeds max_size")
	}

	return &Result{Buffer: decoded, BufferedOriginal: original}, nil
}

// readBounded reads r to completion, reporting overran=true the moment
// the accumulated size exceeds maxSize rather than reading further.
// maxSize <= 0 means unlimited.
func readBounded(r io.Reader, maxSize int64) (data []byte, overran bool, err error) {
	if maxSize <= 0 {
		data, err = io.ReadAll(r)
		return data, false, err
	}

	limited := io.LimitReader(r, maxSize+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	return buf, int64(len(buf)) > maxSize, nil
}
