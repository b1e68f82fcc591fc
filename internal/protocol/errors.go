package protocol

import "errors"

var (
	ErrAddressUnavailable = errors.New("protocol: address unavailable")
	ErrHandshakeFailed    = errors.New("protocol: handshake failed")
	ErrProtocolMismatch   = errors.New("protocol: protocol mismatch")
	ErrDeliveryFailed     = errors.New("protocol: delivery failed")
	ErrPeerNotFixed       = errors.New("protocol: peer not fixed")
	ErrInvalidRole        = errors.New("protocol: invalid role")
)
