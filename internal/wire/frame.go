package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncatedLength is returned when fewer than 4 bytes are available to
// decode a length prefix before the peer closes.
var ErrTruncatedLength = errors.New("wire: truncated length prefix")

// ErrTruncatedPayload is returned when the peer closes before the declared
// payload length has been fully read.
var ErrTruncatedPayload = errors.New("wire: truncated payload")

// Frame owns the carry-over buffer ("unread_bytes") left over from a socket
// read that returned more bytes than the frame currently being decoded
// needed. Bytes in Carry are the verbatim head of whatever follows on the
// stream: the next frame, or the first bytes of a raw file body.
//
// A Frame is not safe for concurrent use; the pump owns one per connection.
type Frame struct {
	Carry []byte
}

// reader is the minimal surface Frame needs from a net.Conn: a read call
// that may return any number of bytes up to len(p).
type reader interface {
	Read(p []byte) (int, error)
}

// fill consumes from f.Carry first, then reads from r, until exactly n
// bytes have been collected into the returned slice. Any bytes read beyond
// n are pushed back into f.Carry for the next call. Returns
// ErrTruncatedPayload if r returns io.EOF before n bytes are collected.
func (f *Frame) fill(r reader, n int) ([]byte, error) {
	out := make([]byte, 0, n)

	if len(f.Carry) > 0 {
		take := len(f.Carry)
		if take > n {
			take = n
		}
		out = append(out, f.Carry[:take]...)
		f.Carry = f.Carry[take:]
	}

	buf := make([]byte, 4096)
	for len(out) < n {
		readN, err := r.Read(buf)
		if readN > 0 {
			want := n - len(out)
			if readN <= want {
				out = append(out, buf[:readN]...)
			} else {
				out = append(out, buf[:want]...)
				f.Carry = append(f.Carry, buf[want:readN]...)
			}
		}
		if err != nil {
			if len(out) < n {
				if errors.Is(err, io.EOF) {
					return nil, ErrTruncatedPayload
				}
				return nil, err
			}
			break
		}
		if readN == 0 && err == nil {
			return nil, fmt.Errorf("wire: reader made no progress")
		}
	}
	return out, nil
}

// ReadMessage decodes exactly one framed message from r, draining Carry
// before issuing any fresh read. After it returns successfully, Carry is
// either empty or holds the verbatim head of the next frame (or, for an
// accepted file transfer, the first raw file bytes that arrived coalesced
// with the accept response).
func (f *Frame) ReadMessage(r reader) (Body, error) {
	lenBytes, err := f.fillLength(r)
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBytes)

	payload, err := f.fill(r, int(length))
	if err != nil {
		return nil, err
	}

	return Decode(payload)
}

// fillLength reads the 4-byte length prefix, translating a short read from
// a closed peer into ErrTruncatedLength rather than ErrTruncatedPayload.
func (f *Frame) fillLength(r reader) ([]byte, error) {
	b, err := f.fill(r, 4)
	if err != nil {
		if errors.Is(err, ErrTruncatedPayload) {
			return nil, ErrTruncatedLength
		}
		return nil, err
	}
	return b, nil
}

// WriteMessage encodes body and writes the length-prefixed frame to w in
// one call, since the wire format requires the length to precede the body.
func WriteMessage(w io.Writer, body Body) error {
	payload, err := Encode(body)
	if err != nil {
		return err
	}
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	_, err = w.Write(frame)
	return err
}

// DrainCarry removes and returns up to n bytes from the carry buffer,
// without touching the socket. It is used by the receive pipeline to
// consume any file bytes that arrived coalesced with the preceding frame
// before issuing a fresh socket read, per the carry-buffer invariant.
func (f *Frame) DrainCarry(n int) []byte {
	if len(f.Carry) == 0 {
		return nil
	}
	take := len(f.Carry)
	if take > n {
		take = n
	}
	out := f.Carry[:take]
	f.Carry = f.Carry[take:]
	return out
}
