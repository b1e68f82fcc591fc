package frame

import "fmt"

// Wire codes. Every handshake and control frame is exactly one byte.
const (
	Ack         byte = 0x01
	CodeSend    byte = 0x01
	CodeReceive byte = 0x02
	CodePing    byte = 0x03
	CodePong    byte = 0x04
	CodeRTP     byte = 0x80
)

// MTU is the largest fragment carried by one datagram.
const MTU = 1320

// RoleCode is the decoded role hello sent by an originator.
type RoleCode uint8

const (
	RoleUnrecognized RoleCode = iota
	RoleOriginatorSend
	RoleOriginatorReceive
)

// DecodeRole maps one hello byte to a role. It never fails: the reserved
// control codes and any other byte decode to RoleUnrecognized.
func DecodeRole(b byte) RoleCode {
	switch b {
	case CodeSend:
		return RoleOriginatorSend
	case CodeReceive:
		return RoleOriginatorReceive
	default:
		return RoleUnrecognized
	}
}

// Byte returns the wire byte for r. RoleUnrecognized has no encoding.
func (r RoleCode) Byte() (byte, bool) {
	switch r {
	case RoleOriginatorSend:
		return CodeSend, true
	case RoleOriginatorReceive:
		return CodeReceive, true
	default:
		return 0, false
	}
}

func (r RoleCode) String() string {
	switch r {
	case RoleOriginatorSend:
		return "originator-send"
	case RoleOriginatorReceive:
		return "originator-receive"
	case RoleUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func IsAck(b byte) bool {
	return b == Ack
}
