package pdu

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestControlHeader(t *testing.T) {
	h := ControlHeader{PDUID: PDUCreditQuery, TransactionID: 0x1234, ParameterLength: 4}
	got := h.Encode()
	want := []byte{0x00, 0x04, 0x12, 0x34, 0x00, 0x04}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}

	var decoded ControlHeader
	n, err := decoded.Decode(got)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != ControlHeaderSize {
		t.Errorf("Decode() consumed %d, want %d", n, ControlHeaderSize)
	}
	if decoded != h {
		t.Errorf("Decode() = %+v, want %+v", decoded, h)
	}
}

// TestEncodeControl_Vectors checks byte-exact big-endian encodings.
func TestEncodeControl_Vectors(t *testing.T) {
	tests := []struct {
		name string
		tid  uint16
		msg  Message
		want []byte
	}{
		{
			name: "credit grant request",
			tid:  1,
			msg:  CreditGrantRequest{Credit: 100},
			want: []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x00, 0x64},
		},
		{
			name: "credit request reply",
			tid:  0x0102,
			msg:  CreditRequestReply{Result: ResultSuccess, Credit: 50},
			want: []byte{0x00, 0x02, 0x01, 0x02, 0x00, 0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x32},
		},
		{
			name: "soft reset request has empty body",
			tid:  7,
			msg:  SoftResetRequest{},
			want: []byte{0x00, 0x07, 0x00, 0x07, 0x00, 0x00},
		},
		{
			name: "register notification request",
			tid:  9,
			msg:  RegisterNotificationRequest{Register: true, ContextID: 0xA1B2C3D4, CallbackTimeout: 5 * time.Second},
			want: []byte{
				0x00, 0x09, 0x00, 0x09, 0x00, 0x09,
				0x01, 0xA1, 0xB2, 0xC3, 0xD4, 0x00, 0x00, 0x13, 0x88,
			},
		},
		{
			name: "feature unsupported status reply",
			tid:  0x0042,
			msg:  StatusReply{ID: 0x00FF, Result: ResultFeatureUnsupported},
			want: []byte{0x00, 0xFF, 0x00, 0x42, 0x00, 0x02, 0x00, 0x00},
		},
		{
			name: "lpt status reply",
			tid:  3,
			msg:  GetLPTStatusReply{Result: ResultSuccess, Status: LPTSelect | LPTNotError},
			want: []byte{0x00, 0x05, 0x00, 0x03, 0x00, 0x03, 0x00, 0x01, 0x18},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeControl(tt.tid, tt.msg)
			if err != nil {
				t.Fatalf("EncodeControl() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeControl() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestControl_RoundTrip(t *testing.T) {
	longID := []byte(strings.Repeat("MFG:ACME;CMD:PCL;", 60))
	mtu := 672
	truncated := longID[:MaxBodyLen(mtu)-2]

	tests := []struct {
		name string
		msg  Message
	}{
		{"CreditGrantRequest", CreditGrantRequest{Credit: 0xFFFFFFFF}},
		{"CreditGrantReply", CreditGrantReply{Result: ResultSuccess}},
		{"CreditRequestRequest", CreditRequestRequest{}},
		{"CreditRequestReply", CreditRequestReply{Result: ResultSuccess, Credit: 4096}},
		{"CreditReturnRequest", CreditReturnRequest{Credit: 12}},
		{"CreditReturnReply", CreditReturnReply{Result: ResultSuccess, Credit: 12}},
		{"CreditQueryRequest", CreditQueryRequest{Credit: 77}},
		{"CreditQueryReply", CreditQueryReply{Result: ResultCreditSynchronizationError, Credit: 70}},
		{"GetLPTStatusRequest", GetLPTStatusRequest{}},
		{"GetLPTStatusReply", GetLPTStatusReply{Result: ResultSuccess, Status: LPTPaperEmpty}},
		{"Get1284IDRequest", Get1284IDRequest{Offset: 10, Count: 200}},
		{"Get1284IDReply short", Get1284IDReply{Result: ResultSuccess, ID: []byte("MFG:ACME;")}},
		{"Get1284IDReply max", Get1284IDReply{Result: ResultSuccess, ID: truncated}},
		{"SoftResetRequest", SoftResetRequest{}},
		{"SoftResetReply", SoftResetReply{Result: ResultSuccess}},
		{"HardResetRequest", HardResetRequest{}},
		{"HardResetReply", HardResetReply{Result: ResultGenericFailure}},
		{"RegisterNotificationRequest", RegisterNotificationRequest{Register: false, ContextID: 5, CallbackTimeout: 250 * time.Millisecond}},
		{"RegisterNotificationReply", RegisterNotificationReply{Result: ResultSuccess, Timeout: time.Minute, CallbackTimeout: 5 * time.Second}},
		{"NotificationConnectionAliveRequest", NotificationConnectionAliveRequest{}},
		{"NotificationConnectionAliveReply", NotificationConnectionAliveReply{Result: ResultSuccess, TimeoutIncrement: 30 * time.Second}},
		{"VendorSpecific request", VendorSpecific{ID: 0x8001, Dir: DirectionRequest, Data: []byte{1, 2, 3}}},
		{"VendorSpecific reply", VendorSpecific{ID: 0xFFFF, Dir: DirectionReply, Data: []byte{9}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeControl(0xBEEF, tt.msg)
			if err != nil {
				t.Fatalf("EncodeControl() error = %v", err)
			}
			if len(encoded) > ControlHeaderSize+MaxBodyLen(mtu) {
				t.Fatalf("encoded %d bytes, exceeds MTU %d", len(encoded), mtu)
			}
			decoded, err := DecodeControl(encoded, tt.msg.Direction())
			if err != nil {
				t.Fatalf("DecodeControl() error = %v", err)
			}
			if decoded.TransactionID != 0xBEEF {
				t.Errorf("TransactionID = 0x%04X, want 0xBEEF", decoded.TransactionID)
			}
			if !reflect.DeepEqual(decoded.Message, tt.msg) {
				t.Errorf("DecodeControl() = %#v, want %#v", decoded.Message, tt.msg)
			}
		})
	}
}

func TestDecodeControl_Truncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x00, 0x01, 0x00}},
		{"body shorter than declared", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x04, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeControl(tt.data, DirectionRequest)
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("DecodeControl() error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestDecodeControl_Malformed(t *testing.T) {
	// Declared length matches, but a credit grant needs 4 bytes.
	data := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x00, 0x01}
	if _, err := DecodeControl(data, DirectionRequest); !errors.Is(err, ErrMalformed) {
		t.Errorf("DecodeControl() error = %v, want ErrMalformed", err)
	}

	// Success reply without its credit field.
	data = []byte{0x00, 0x02, 0x00, 0x01, 0x00, 0x02, 0x00, 0x01}
	if _, err := DecodeControl(data, DirectionReply); !errors.Is(err, ErrMalformed) {
		t.Errorf("DecodeControl() error = %v, want ErrMalformed", err)
	}
}

func TestDecodeControl_ShortRefusal(t *testing.T) {
	// A FeatureUnsupported reply to CreditRequest carrying only the result code.
	data := []byte{0x00, 0x02, 0x00, 0x05, 0x00, 0x02, 0x00, 0x00}
	got, err := DecodeControl(data, DirectionReply)
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	want := CreditRequestReply{Result: ResultFeatureUnsupported}
	if got.Message != want {
		t.Errorf("DecodeControl() = %#v, want %#v", got.Message, want)
	}
}

func TestDecodeControl_Unknown(t *testing.T) {
	data := []byte{0x00, 0xFF, 0x12, 0x34, 0x00, 0x01, 0xAA}
	got, err := DecodeControl(data, DirectionRequest)
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	unk, ok := got.Message.(Unknown)
	if !ok {
		t.Fatalf("DecodeControl() = %T, want Unknown", got.Message)
	}
	if unk.ID != 0x00FF || unk.TransactionID != 0x1234 {
		t.Errorf("Unknown = %+v, want id 0x00FF tid 0x1234", unk)
	}
	if !bytes.Equal(unk.Body, []byte{0xAA}) {
		t.Errorf("Unknown.Body = %x, want aa", unk.Body)
	}
}

func TestDecodeControl_TrailingBytesIgnored(t *testing.T) {
	data := []byte{0x00, 0x07, 0x00, 0x01, 0x00, 0x00, 0xDE, 0xAD}
	got, err := DecodeControl(data, DirectionRequest)
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	if _, ok := got.Message.(SoftResetRequest); !ok {
		t.Errorf("DecodeControl() = %T, want SoftResetRequest", got.Message)
	}
}

func TestEncodeControl_Errors(t *testing.T) {
	if _, err := EncodeControl(1, VendorSpecific{ID: 0x0100}); !errors.Is(err, ErrNotVendorSpecific) {
		t.Errorf("EncodeControl(vendor 0x0100) error = %v, want ErrNotVendorSpecific", err)
	}
	big := VendorSpecific{ID: 0x8000, Data: make([]byte, MaxParameterLength+1)}
	if _, err := EncodeControl(1, big); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("EncodeControl(oversized) error = %v, want ErrBodyTooLarge", err)
	}
}

func TestNotification_RoundTrip(t *testing.T) {
	tests := []NotificationMessage{
		Notification{ContextID: 0xCAFEBABE},
		VendorNotification{ID: 0x9000, Data: []byte("jam")},
	}
	for _, m := range tests {
		encoded, err := EncodeNotification(m)
		if err != nil {
			t.Fatalf("EncodeNotification(%T) error = %v", m, err)
		}
		decoded, err := DecodeNotification(encoded)
		if err != nil {
			t.Fatalf("DecodeNotification() error = %v", err)
		}
		if !reflect.DeepEqual(decoded, m) {
			t.Errorf("DecodeNotification() = %#v, want %#v", decoded, m)
		}
	}

	encoded, _ := EncodeNotification(Notification{ContextID: 1})
	if want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01}; !bytes.Equal(encoded, want) {
		t.Errorf("EncodeNotification() = %x, want %x", encoded, want)
	}
}

func TestDecodeNotification_Errors(t *testing.T) {
	if _, err := DecodeNotification([]byte{0x00}); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeNotification(1 byte) error = %v, want ErrTruncated", err)
	}
	if _, err := DecodeNotification([]byte{0x00, 0x01, 0x00}); !errors.Is(err, ErrMalformed) {
		t.Errorf("DecodeNotification(short body) error = %v, want ErrMalformed", err)
	}
	got, err := DecodeNotification([]byte{0x00, 0x02})
	if err != nil {
		t.Fatalf("DecodeNotification(unknown) error = %v", err)
	}
	if _, ok := got.(UnknownNotification); !ok {
		t.Errorf("DecodeNotification(unknown) = %T, want UnknownNotification", got)
	}
}

func TestMaxBodyLen(t *testing.T) {
	tests := []struct {
		mtu  int
		want int
	}{
		{0, 0},
		{6, 0},
		{7, 1},
		{48, 42},
		{672, 666},
		{1 << 20, MaxParameterLength},
	}
	for _, tt := range tests {
		if got := MaxBodyLen(tt.mtu); got != tt.want {
			t.Errorf("MaxBodyLen(%d) = %d, want %d", tt.mtu, got, tt.want)
		}
	}
	if got := MaxNotificationBodyLen(48); got != 46 {
		t.Errorf("MaxNotificationBodyLen(48) = %d, want 46", got)
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(-time.Second); got != 0 {
		t.Errorf("Millis(-1s) = %d, want 0", got)
	}
	if got := Millis(1500 * time.Millisecond); got != 1500 {
		t.Errorf("Millis(1.5s) = %d, want 1500", got)
	}
	if got := Millis(100 * 24 * 365 * time.Hour); got != 0xFFFFFFFF {
		t.Errorf("Millis(100y) = %d, want max", got)
	}
}

func TestPDUID_String(t *testing.T) {
	if got := PDUHardReset.String(); got != "HardReset" {
		t.Errorf("String() = %q, want HardReset", got)
	}
	if got := PDUID(0x8001).String(); got != "VendorSpecific(0x8001)" {
		t.Errorf("String() = %q", got)
	}
	if !PDUID(0x8000).IsVendorSpecific() || PDUID(0x7FFF).IsVendorSpecific() {
		t.Error("IsVendorSpecific boundary wrong")
	}
}
