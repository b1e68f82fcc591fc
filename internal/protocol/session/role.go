package session

import (
	"fmt"

	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/frame"
)

// Role is the local side of an established session.
type Role uint8

const (
	RoleNone Role = iota
	RoleSend
	RoleReceive
)

func (r Role) String() string {
	switch r {
	case RoleSend:
		return "send"
	case RoleReceive:
		return "receive"
	default:
		return "none"
	}
}

// Hello is the byte an originator in role r opens the handshake with.
func (r Role) Hello() (byte, error) {
	switch r {
	case RoleSend:
		return frame.CodeSend, nil
	case RoleReceive:
		return frame.CodeReceive, nil
	default:
		return 0, fmt.Errorf("%w: %s has no hello", protocol.ErrInvalidRole, r)
	}
}

// AcceptorRole maps a peer's hello to the complementary local role. A peer
// that will send makes this side the receiver and vice versa.
func AcceptorRole(code frame.RoleCode) Role {
	switch code {
	case frame.RoleOriginatorSend:
		return RoleReceive
	case frame.RoleOriginatorReceive:
		return RoleSend
	default:
		return RoleNone
	}
}
