package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		op      frameOp
		payload []byte
	}{
		{"open", opOpen, []byte{0x01}},
		{"empty data", opData, nil},
		{"data", opData, []byte("hello printer")},
		{"max sdu", opData, bytes.Repeat([]byte{0x5A}, MaxSDU)},
		{"close", opClose, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeFrame(&buf, tt.op, tt.payload); err != nil {
				t.Fatalf("writeFrame() error = %v", err)
			}
			if buf.Len() != frameHeaderLen+1+len(tt.payload) {
				t.Errorf("frame length = %d, want %d", buf.Len(), frameHeaderLen+1+len(tt.payload))
			}

			op, payload, err := readFrame(newFrameReader(&buf))
			if err != nil {
				t.Fatalf("readFrame() error = %v", err)
			}
			if op != tt.op {
				t.Errorf("op = %v, want %v", op, tt.op)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("payload length = %d, want %d", len(payload), len(tt.payload))
			}
		})
	}
}

func TestFrame_Wire(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, opData, []byte{0xAA, 0xBB})
	want := []byte{0x00, 0x03, 0x03, 0xAA, 0xBB}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame = %x, want %x", buf.Bytes(), want)
	}
}

func TestFrame_Errors(t *testing.T) {
	if err := writeFrame(io.Discard, opData, make([]byte, MaxSDU+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("writeFrame(oversized) error = %v, want ErrMessageTooLarge", err)
	}

	if _, _, err := readFrame(newFrameReader(bytes.NewReader([]byte{0x00, 0x00}))); !errors.Is(err, ErrUnexpectedFrame) {
		t.Errorf("readFrame(zero length) error = %v, want ErrUnexpectedFrame", err)
	}
	if _, _, err := readFrame(newFrameReader(bytes.NewReader([]byte{0x00, 0x05, 0x03}))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readFrame(short) error = %v, want ErrUnexpectedEOF", err)
	}
	if _, _, err := readFrame(newFrameReader(bytes.NewReader(nil))); !errors.Is(err, io.EOF) {
		t.Errorf("readFrame(empty) error = %v, want EOF", err)
	}
}

func TestFrameOp_String(t *testing.T) {
	tests := []struct {
		op   frameOp
		want string
	}{
		{opOpen, "Open"},
		{opStatus, "Status"},
		{opData, "Data"},
		{opClose, "Close"},
		{frameOp(0x7F), "Op(0x7F)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("frameOp(%d).String() = %q, want %q", uint8(tt.op), got, tt.want)
		}
		if got := tt.op.IsValid(); got != (tt.want[:2] != "Op") {
			t.Errorf("frameOp(%d).IsValid() = %v", uint8(tt.op), got)
		}
	}
}
