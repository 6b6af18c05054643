package tftp

import (
	"errors"
	"net"
	"os"
	"time"
)

// MaxRetries is the retransmission budget for a single logical step,
// shared by both the Timed Receiver and the final-ACK-wait grace period.
const MaxRetries = 3

// MaxDatagram is the largest datagram this package will ever need to
// read: the protocol maximum blksize plus the 4-byte DATA header.
const MaxDatagram = MaxBlksize + 4

// Receiver is the Timed Receiver (spec §4.4): it blocks for a datagram
// correlated to an established peer TID, retransmitting the last
// outgoing packet on deadline expiry and answering stranger-TID traffic
// with ERROR 5 without consuming a retry.
type Receiver struct {
	conn    net.PacketConn
	timeout time.Duration
	bufSize int
	sink    EventSink
	clock   Clock
}

// NewReceiver builds a Receiver bound to conn, using timeout as the base
// per-attempt deadline, blksize to size the fixed receive buffer
// (blksize+4, per spec §5), sink for retransmit/stranger-TID events, and
// clock to compute deadlines (pass nil for the production wall clock).
func NewReceiver(conn net.PacketConn, timeout time.Duration, blksize int, sink EventSink, clock Clock) *Receiver {
	if sink == nil {
		sink = NopEventSink{}
	}

	if clock == nil {
		clock = RealClock
	}

	return &Receiver{conn: conn, timeout: timeout, bufSize: blksize + 4, sink: sink, clock: clock}
}

// RecvWithRetransmit awaits one datagram addressed to this socket.
// peer is the address to retransmit lastSent to; expectedTID is the
// source port a response must carry once established (0 means not yet
// established: any source is accepted and its port becomes the TID).
// lastSent, when non-nil, is resent verbatim on each deadline expiry.
func (r *Receiver) RecvWithRetransmit(peer net.Addr, expectedTID int, lastSent []byte) ([]byte, net.Addr, error) {
	buf := make([]byte, r.bufSize)

	for attempt := 0; ; {
		mult := 1
		if 2*attempt > 1 {
			mult = 2 * attempt
		}

		deadline := r.timeout * time.Duration(mult)

		if err := r.conn.SetReadDeadline(r.clock.Now().Add(deadline)); err != nil {
			return nil, nil, &IoError{Op: "set read deadline", Err: err}
		}

		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if attempt >= MaxRetries {
					r.sink.Emit(Event{Kind: KindTimeout, Direction: DirReceived, Peer: peer})

					return nil, nil, &TimeoutError{Step: "reply"}
				}

				attempt++

				if lastSent != nil {
					if _, werr := r.conn.WriteTo(lastSent, peer); werr != nil {
						return nil, nil, &IoError{Op: "retransmit", Err: werr}
					}

					r.sink.Emit(Event{Kind: KindRetransmit, Direction: DirSent, Peer: peer})
				}

				continue
			}

			return nil, nil, &IoError{Op: "read datagram", Err: err}
		}

		if expectedTID != 0 {
			if !tidMatches(addr, expectedTID) {
				r.sink.Emit(Event{Kind: KindStrangerTID, Direction: DirReceived, Peer: addr})
				r.sendUnknownTID(addr)

				continue
			}
		}

		out := make([]byte, n)
		copy(out, buf[:n])

		return out, addr, nil
	}
}

func tidMatches(addr net.Addr, tid int) bool {
	udpAddr, ok := addr.(*net.UDPAddr)

	return ok && udpAddr.Port == tid
}

func (r *Receiver) sendUnknownTID(stranger net.Addr) {
	p := &Packet{Opcode: OpERROR, ErrCode: ErrUnknownTID, Message: "unknown transfer ID"}

	b, err := p.MarshalBinary()
	if err != nil {
		return
	}

	_, _ = r.conn.WriteTo(b, stranger)
}

// TID returns the UDP port of addr, or 0 if addr is not a UDP address.
func TID(addr net.Addr) int {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.Port
	}

	return 0
}
