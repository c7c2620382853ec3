package transport

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Frame layout on a channel connection:
//
//	+--------+-----+---------+
//	| len:16 | op  | payload |
//	+--------+-----+---------+
//
// len is big-endian and counts the op byte plus the payload. Every frame is
// written with a single Write so packet-oriented connections carry exactly
// one frame per packet.
const (
	frameHeaderLen = 2

	// MaxSDU is the largest SDU a channel can carry.
	MaxSDU = 0xFFFF - 1

	readBufferSize = frameHeaderLen + 0xFFFF
)

func appendFrame(dst []byte, op frameOp, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(1+len(payload)))
	dst = append(dst, byte(op))
	return append(dst, payload...)
}

func writeFrame(w io.Writer, op frameOp, payload []byte) error {
	if len(payload) > MaxSDU {
		return ErrMessageTooLarge
	}
	_, err := w.Write(appendFrame(make([]byte, 0, frameHeaderLen+1+len(payload)), op, payload))
	return err
}

// readFrame reads one frame. The payload is a fresh copy.
func readFrame(r *bufio.Reader) (frameOp, []byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 {
		return 0, nil, ErrUnexpectedFrame
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return frameOp(body[0]), body[1:], nil
}

func newFrameReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, readBufferSize)
}
