// Package protocol owns the wire contract shared by every rdgram layer.
//
// Ownership boundary:
// - error kinds reported by channel, session and rendezvous code
// - frame/role codec (subpackage frame)
// - datagram channel (subpackage channel)
// - reliable stream roles (subpackage session)
//
// All handshake and control bytes are exactly one byte wide. Application
// fragments carry no header.
package protocol
