// Package eventlog adapts the transfer engine's structured Event stream
// onto a zap logger, the way the teacher threads a *zap.SugaredLogger
// through its server and client packages.
package eventlog

import (
	"net"

	"go.uber.org/zap"

	"github.com/gotftp/tftp/pkg/tftp"
)

// Sink is a tftp.EventSink backed by a zap SugaredLogger. Packet
// send/receive and retransmit events log at debug, stranger-TID and
// timeout events log at warn, so a server can run at info level in
// production and drop to debug only when chasing a specific transfer.
type Sink struct {
	log *zap.SugaredLogger
}

// New builds a Sink that logs through log.
func New(log *zap.SugaredLogger) *Sink {
	return &Sink{log: log}
}

func (s *Sink) Emit(e tftp.Event) {
	switch e.Kind {
	case tftp.KindPacket:
		s.log.Debugw("packet",
			"direction", e.Direction.String(),
			"peer", addrString(e.Peer),
			"localTID", e.LocalTID,
			"opcode", e.Packet.String(),
			"block", e.Block,
			"errCode", e.ErrCode,
			"message", e.Message,
		)
	case tftp.KindStrangerTID:
		s.log.Warnw("datagram from unknown TID",
			"peer", addrString(e.Peer),
			"localTID", e.LocalTID,
		)
	case tftp.KindTimeout:
		s.log.Warnw("receive timed out",
			"peer", addrString(e.Peer),
			"localTID", e.LocalTID,
		)
	case tftp.KindRetransmit:
		s.log.Debugw("retransmitting",
			"peer", addrString(e.Peer),
			"localTID", e.LocalTID,
		)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}

	return a.String()
}
