package rpcrouter

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

// connectContentType is the fixed media type for both unary and streaming
// responses — spec.md §4.6/§6.
const connectContentType = "application/connect+json"

// Frame flags — spec.md §4.6/§6 envelope layout.
const (
	flagData    byte = 0x00
	flagTrailer byte = 0x80
)

// writeFrame emits one envelope frame: 1 byte flags, 4 bytes big-endian
// payload length, then the payload — spec.md §6's exact byte layout.
func writeFrame(w io.Writer, flag byte, payload []byte) error {
	header := [5]byte{flag}
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeDataFrame(w io.Writer, payload []byte) error    { return writeFrame(w, flagData, payload) }
func writeTrailerFrame(w io.Writer, payload []byte) error { return writeFrame(w, flagTrailer, payload) }

// readFrame decodes one envelope frame from r. Used by this package's
// tests; the router itself only writes frames.
func readFrame(r io.Reader) (flag byte, payload []byte, err error) {
	var header [5]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	flag = header[0]
	length := binary.BigEndian.Uint32(header[1:])
	payload = make([]byte, length)
	if length > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return flag, payload, nil
}

func marshalErrorEnvelope(e *Error) []byte {
	body, err := json.Marshal(newErrorEnvelope(e))
	if err != nil {
		// errorEnvelope is always plain strings; Marshal cannot fail in
		// practice, but never let a trailer frame carry invalid JSON.
		return []byte(`{"error":{"code":"internal","message":"failed to encode error"}}`)
	}
	return body
}
