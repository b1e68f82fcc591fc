// Package session owns the reliable stream roles built on a fixed channel.
//
// Ownership boundary:
// - originator handshakes (ConnectSender, ConnectReceiver, Dialer)
// - stop-and-wait fragment delivery (Sender)
// - per-datagram acknowledgment (Receiver)
// - the two-role Session variant handed out by the rendezvous acceptor
//
// Fragments carry no sequence number. Ordering and loss detection rely on
// one synchronous acknowledgment per fragment, so a duplicated or reordered
// ack can satisfy the wrong fragment's wait.
package session
