package tftp

import (
	"net"
	"time"
)

// ByteSource is the host-provided stream a SENDING transfer reads from.
type ByteSource interface {
	Read(buf []byte) (n int, err error)
}

// ByteSink is the host-provided stream a RECEIVING transfer writes to.
// Abort discards any partial output. The Engine calls it once, when Run
// ends in an error on the receiving side; it is never called after a
// successful transfer.
type ByteSink interface {
	Write(buf []byte) (err error)
	Abort() error
}

// Clock supplies the bounded waits the Timed Receiver needs. The
// production implementation is real wall-clock time via
// net.PacketConn's deadline methods; tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

// SocketFactory produces bound UDP sockets. The server uses it once for
// the well-known-port listener and once per accepted transfer for a
// fresh ephemeral-port socket; the client uses it once per transfer.
type SocketFactory interface {
	ListenUDP(laddr string) (net.PacketConn, error)
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock backed by the wall clock.
var RealClock Clock = realClock{}

// UDPSocketFactory is the production SocketFactory backed by net.ListenPacket.
type UDPSocketFactory struct{}

func (UDPSocketFactory) ListenUDP(laddr string) (net.PacketConn, error) {
	return net.ListenPacket("udp", laddr)
}
