package transport

import "fmt"

// frameOp is the first byte of every frame on a channel connection.
type frameOp uint8

const (
	// opOpen starts the handshake. Payload: one byte of profile.ChannelKind.
	opOpen frameOp = 0x01
	// opStatus answers opOpen. Payload: one byte of profile.OpenStatus.
	opStatus frameOp = 0x02
	// opData carries one SDU.
	opData frameOp = 0x03
	// opClose announces an orderly disconnect.
	opClose frameOp = 0x04
)

// String returns the string representation of the frame op.
func (o frameOp) String() string {
	switch o {
	case opOpen:
		return "Open"
	case opStatus:
		return "Status"
	case opData:
		return "Data"
	case opClose:
		return "Close"
	default:
		return fmt.Sprintf("Op(0x%02X)", uint8(o))
	}
}

// IsValid returns true if the op is a known frame op.
func (o frameOp) IsValid() bool {
	return o >= opOpen && o <= opClose
}
