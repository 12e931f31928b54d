package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxFrameSize bounds a single frame payload. Reports carry rendered SVG
// and geometry, so the limit is generous, but a corrupted length line must
// never drive an allocation.
const maxFrameSize = 32 << 20

// WriteFrame writes one length-prefixed payload: the decimal byte count,
// a newline, then the payload itself.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%d\n", len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload. It returns io.EOF at a
// clean end of stream and io.ErrUnexpectedEOF when the stream stops
// mid-frame.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line == "" {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	length := strings.TrimSpace(line)
	n, err := strconv.Atoi(length)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("bad frame length %q", length)
	}
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds the %d byte limit", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// writeFrameJSON marshals v and writes it as one frame.
func writeFrameJSON(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
