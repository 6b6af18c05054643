package tftp

import (
	"net"
	"strconv"
	"time"
)

// Role is the direction of data flow for a transfer, independent of
// which side (client or server) is driving it.
type Role int

const (
	RoleRead  Role = iota // data flows from the file owner to the requester
	RoleWrite             // data flows from the requester to the file owner
)

// Side identifies which endpoint this Engine instance is playing.
type Side int

const (
	SideClient Side = iota
	SideServer
)

// TransferRequest is the Engine's input: everything it needs to drive
// one lock-step transfer to completion. The caller (client CLI glue or
// server dispatcher) is responsible for any pre-send existence checks
// (spec §4.5) before constructing one of these — the Engine only ever
// sees abstract byte streams, never paths.
type TransferRequest struct {
	Side     Side
	Role     Role
	Peer     net.Addr
	Filename string
	Mode     Mode
	Options  OptionSet // client: offered; server: as decoded from the request
	Source   ByteSource
	Sink     ByteSink
	FileSize uint64 // server-side read: file size to echo as tsize

	// CheckSpace, if set, is consulted by a client read when the server
	// echoes tsize for an initial tsize=0 query (spec §4.2). It reports
	// whether required bytes of local free space are available.
	CheckSpace func(required uint64) (bool, error)
}

func (r *TransferRequest) isSender() bool {
	return (r.Side == SideClient && r.Role == RoleWrite) || (r.Side == SideServer && r.Role == RoleRead)
}

// Engine is the Transfer Engine (spec §4.5): the lock-step state machine
// shared symmetrically by both read and write transfers on both the
// client and the server.
type Engine struct {
	req  TransferRequest
	conn net.PacketConn
	sink EventSink

	peerAddr net.Addr
	peerTID  int

	blksize int
	timeout time.Duration
	recv    *Receiver
	clock   Clock

	netasciiEnc *NetasciiReader
	netasciiDec *NetasciiWriter
}

// NewEngine builds an Engine ready to Run. conn must already be bound
// (the ephemeral per-transfer socket on the server, the client's own
// socket on the client).
func NewEngine(req TransferRequest, conn net.PacketConn, sink EventSink) *Engine {
	if sink == nil {
		sink = NopEventSink{}
	}

	e := &Engine{
		req:      req,
		conn:     conn,
		sink:     sink,
		peerAddr: req.Peer,
		blksize:  DefaultBlksize,
		timeout:  DefaultTimeout * time.Second,
		clock:    RealClock,
	}

	if req.Side == SideServer {
		e.peerTID = TID(req.Peer)
	}

	e.recv = NewReceiver(conn, e.timeout, e.blksize, sink, e.clock)

	if req.Mode == ModeNetascii {
		if req.isSender() {
			e.netasciiEnc = NewNetasciiEncoder(req.Source)
		} else {
			e.netasciiDec = NewNetasciiDecoder(sinkWriter{req.Sink})
		}
	}

	return e
}

// sinkWriter adapts the spec's ByteSink.Write(buf) error contract to
// io.Writer so the NETASCII decoder (an io.Writer decorator) can wrap it.
type sinkWriter struct{ sink ByteSink }

func (s sinkWriter) Write(p []byte) (int, error) {
	if err := s.sink.Write(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Run drives the transfer to completion: success (nil), a fatal local
// error, or a *PeerError received from the other side. On any error
// while this Engine is on the receiving side, it aborts the sink so the
// partially written destination does not survive (spec §4.5, §5).
func (e *Engine) Run() error {
	err := e.run()
	if err != nil && !e.req.isSender() {
		_ = e.req.Sink.Abort()
	}

	return err
}

func (e *Engine) run() error {
	switch e.req.Side {
	case SideClient:
		return e.runClient()
	case SideServer:
		return e.runServer()
	default:
		return &IllegalOperationError{Reason: "unknown side"}
	}
}

// --- client ---

func (e *Engine) runClient() error {
	opcode := OpRRQ
	if e.req.Role == RoleWrite {
		opcode = OpWRQ
	}

	reqPkt := &Packet{Opcode: opcode, Filename: e.req.Filename, Mode: e.req.Mode, Options: e.req.Options}

	b, err := reqPkt.MarshalBinary()
	if err != nil {
		return err
	}

	if err := e.transmitTo(b, e.peerAddr); err != nil {
		return err
	}

	e.emitSent(opcode, 0, e.peerAddr)

	data, addr, err := e.recv.RecvWithRetransmit(e.peerAddr, 0, b)
	if err != nil {
		return err
	}

	e.establishPeer(addr)

	resp, decErr := DecodePacket(data)
	if decErr != nil {
		return e.sendDecodeError(decErr)
	}

	e.emitRecv(resp, addr)

	switch resp.Opcode {
	case OpOACK:
		return e.clientHandleOack(resp)
	case OpACK:
		if resp.Block != 0 || e.req.Role != RoleWrite {
			return e.sendError(&IllegalOperationError{Reason: "unexpected ACK in AWAIT_FIRST_REPLY"})
		}

		return e.runSender(nil, false)
	case OpDATA:
		if resp.Block != 1 || e.req.Role != RoleRead {
			return e.sendError(&IllegalOperationError{Reason: "unexpected DATA in AWAIT_FIRST_REPLY"})
		}

		return e.processFirstData(resp)
	case OpERROR:
		return &PeerError{Code_: resp.ErrCode, Message: resp.Message}
	default:
		return e.sendError(&IllegalOperationError{Reason: "unexpected " + resp.Opcode.String() + " in AWAIT_FIRST_REPLY"})
	}
}

func (e *Engine) clientHandleOack(resp *Packet) error {
	if e.req.Options.Len() == 0 {
		return e.sendError(&IllegalOperationError{Reason: "unsolicited OACK"})
	}

	session, negErr := NegotiateClient(e.req.Options, resp.Options)
	if negErr != nil {
		return e.sendError(negErr.(wireError))
	}

	e.adoptSession(session)

	if session.HasTsize && e.req.Role == RoleRead && e.req.CheckSpace != nil {
		ok, cerr := e.req.CheckSpace(session.Tsize)
		if cerr != nil {
			return &IoError{Op: "check free space", Err: cerr}
		}

		if !ok {
			return e.sendError(&DiskFullError{
				Reason: "insufficient local space for " + strconv.FormatUint(session.Tsize, 10) + " bytes",
			})
		}
	}

	if e.req.Role == RoleRead {
		ackPkt := &Packet{Opcode: OpACK, Block: 0}

		ab, err := ackPkt.MarshalBinary()
		if err != nil {
			return err
		}

		if err := e.transmitTo(ab, e.peerAddr); err != nil {
			return err
		}

		e.emitSent(OpACK, 0, e.peerAddr)

		return e.runReceiver(1, ab)
	}

	// Write: the OACK itself plays the role of ACK(0); proceed straight
	// to sending DATA(1).
	return e.runSender(nil, false)
}

func (e *Engine) adoptSession(session NegotiatedOptions) {
	e.blksize = session.Blksize
	e.timeout = time.Duration(session.Timeout) * time.Second
	e.recv = NewReceiver(e.conn, e.timeout, e.blksize, e.sink, e.clock)

	if e.req.Mode == ModeNetascii {
		if e.req.isSender() {
			e.netasciiEnc = NewNetasciiEncoder(e.req.Source)
		} else {
			e.netasciiDec = NewNetasciiDecoder(sinkWriter{e.req.Sink})
		}
	}
}

// --- server ---

func (e *Engine) runServer() error {
	switch e.req.Role {
	case RoleRead:
		return e.runServerRead()
	case RoleWrite:
		return e.runServerWrite()
	default:
		return &IllegalOperationError{Reason: "unknown role"}
	}
}

func (e *Engine) runServerRead() error {
	if e.req.Options.Len() == 0 {
		return e.runSender(nil, false)
	}

	ackOpts, session, err := NegotiateServer(e.req.Options, true, e.req.FileSize)
	if err != nil {
		return e.sendError(err.(wireError))
	}

	e.adoptSession(session)

	oackPkt := &Packet{Opcode: OpOACK, Options: ackOpts}

	b, merr := oackPkt.MarshalBinary()
	if merr != nil {
		return merr
	}

	if err := e.transmitTo(b, e.peerAddr); err != nil {
		return err
	}

	e.emitSent(OpOACK, 0, e.peerAddr)

	return e.runSender(b, true)
}

func (e *Engine) runServerWrite() error {
	if e.req.Options.Len() == 0 {
		ackPkt := &Packet{Opcode: OpACK, Block: 0}

		b, err := ackPkt.MarshalBinary()
		if err != nil {
			return err
		}

		if err := e.transmitTo(b, e.peerAddr); err != nil {
			return err
		}

		e.emitSent(OpACK, 0, e.peerAddr)

		return e.runReceiver(1, b)
	}

	ackOpts, session, err := NegotiateServer(e.req.Options, false, 0)
	if err != nil {
		return e.sendError(err.(wireError))
	}

	e.adoptSession(session)

	oackPkt := &Packet{Opcode: OpOACK, Options: ackOpts}

	b, merr := oackPkt.MarshalBinary()
	if merr != nil {
		return merr
	}

	if err := e.transmitTo(b, e.peerAddr); err != nil {
		return err
	}

	e.emitSent(OpOACK, 0, e.peerAddr)

	return e.runReceiver(1, b)
}

// --- SENDING ---

// runSender drives the SENDING state. If awaitAckZero is true, control
// (the bytes already sent as WRQ/OACK) is awaited as ACK(0) before the
// first DATA block is built; otherwise DATA(1) is sent immediately.
func (e *Engine) runSender(control []byte, awaitAckZero bool) error {
	var pending []byte

	var waitFor uint16

	var nextBlock uint16 = 1

	var isFinal bool

	if awaitAckZero {
		pending = control
		waitFor = 0
	} else {
		payload, final, err := e.readNextBlock()
		if err != nil {
			return err
		}

		dataPkt := &Packet{Opcode: OpDATA, Block: nextBlock, Payload: payload}

		b, merr := dataPkt.MarshalBinary()
		if merr != nil {
			return merr
		}

		if err := e.transmitTo(b, e.peerAddr); err != nil {
			return err
		}

		e.emitSent(OpDATA, nextBlock, e.peerAddr)

		pending = b
		waitFor = nextBlock
		isFinal = final
		nextBlock++
	}

	for {
		data, addr, err := e.recv.RecvWithRetransmit(e.peerAddr, e.peerTID, pending)
		if err != nil {
			return err
		}

		e.establishPeer(addr)

		resp, decErr := DecodePacket(data)
		if decErr != nil {
			return e.sendDecodeError(decErr)
		}

		e.emitRecv(resp, addr)

		switch resp.Opcode {
		case OpACK:
			switch {
			case resp.Block < waitFor:
				// Duplicate ACK: ignored, never retransmitted (Sorcerer's
				// Apprentice avoidance).
				continue
			case resp.Block > waitFor:
				return e.sendError(&IllegalOperationError{Reason: "ack for unsent block"})
			}

			if isFinal {
				return nil
			}

			payload, final, rerr := e.readNextBlock()
			if rerr != nil {
				return rerr
			}

			dataPkt := &Packet{Opcode: OpDATA, Block: nextBlock, Payload: payload}

			b, merr := dataPkt.MarshalBinary()
			if merr != nil {
				return merr
			}

			if err := e.transmitTo(b, e.peerAddr); err != nil {
				return err
			}

			e.emitSent(OpDATA, nextBlock, e.peerAddr)

			pending = b
			waitFor = nextBlock
			isFinal = final
			nextBlock++
		case OpERROR:
			return &PeerError{Code_: resp.ErrCode, Message: resp.Message}
		default:
			return e.sendError(&IllegalOperationError{Reason: "unexpected " + resp.Opcode.String() + " while sending"})
		}
	}
}

// --- RECEIVING ---

func (e *Engine) processFirstData(resp *Packet) error {
	if err := e.writeBlock(resp.Payload); err != nil {
		return err
	}

	ackBytes, final, err := e.ackFor(resp.Block, len(resp.Payload))
	if err != nil {
		return err
	}

	if err := e.transmitTo(ackBytes, e.peerAddr); err != nil {
		return err
	}

	e.emitSent(OpACK, resp.Block, e.peerAddr)

	if final {
		return e.finalAckWait(ackBytes, resp.Block)
	}

	return e.runReceiver(resp.Block+1, ackBytes)
}

func (e *Engine) runReceiver(expected uint16, lastAck []byte) error {
	for {
		data, addr, err := e.recv.RecvWithRetransmit(e.peerAddr, e.peerTID, lastAck)
		if err != nil {
			return err
		}

		e.establishPeer(addr)

		resp, decErr := DecodePacket(data)
		if decErr != nil {
			return e.sendDecodeError(decErr)
		}

		e.emitRecv(resp, addr)

		switch resp.Opcode {
		case OpDATA:
			switch {
			case resp.Block < expected:
				// Duplicate DATA: re-send the ACK it corresponds to,
				// without advancing state.
				dup := &Packet{Opcode: OpACK, Block: resp.Block}

				b, merr := dup.MarshalBinary()
				if merr != nil {
					return merr
				}

				if err := e.transmitTo(b, e.peerAddr); err != nil {
					return err
				}

				e.emitSent(OpACK, resp.Block, e.peerAddr)

				continue
			case resp.Block > expected:
				return e.sendError(&IllegalOperationError{Reason: "data block ahead of expected"})
			}

			if err := e.writeBlock(resp.Payload); err != nil {
				return err
			}

			ackBytes, final, aerr := e.ackFor(resp.Block, len(resp.Payload))
			if aerr != nil {
				return aerr
			}

			if err := e.transmitTo(ackBytes, e.peerAddr); err != nil {
				return err
			}

			e.emitSent(OpACK, resp.Block, e.peerAddr)

			if final {
				return e.finalAckWait(ackBytes, resp.Block)
			}

			lastAck = ackBytes
			expected++
		case OpERROR:
			return &PeerError{Code_: resp.ErrCode, Message: resp.Message}
		default:
			return e.sendError(&IllegalOperationError{Reason: "unexpected " + resp.Opcode.String() + " while receiving"})
		}
	}
}

// finalAckWait implements the FINAL_ACK_WAIT state: having just sent the
// ACK for the last DATA block, keep listening for a retransmission of
// that DATA (meaning the ACK was lost), re-sending the ACK on each
// occurrence. Each wait is one Receiver call, which also re-sends the ACK
// on every deadline expiry; once a call spends its whole retry budget
// (MaxRetries retransmissions) with no traffic, the transfer is DONE.
func (e *Engine) finalAckWait(ackBytes []byte, finalBlock uint16) error {
	for {
		data, addr, err := e.recv.RecvWithRetransmit(e.peerAddr, e.peerTID, ackBytes)
		if err != nil {
			if _, ok := err.(*TimeoutError); ok {
				return nil
			}

			return err
		}

		e.establishPeer(addr)

		resp, decErr := DecodePacket(data)
		if decErr != nil {
			continue
		}

		if resp.Opcode == OpDATA && resp.Block == finalBlock {
			if err := e.transmitTo(ackBytes, e.peerAddr); err != nil {
				return err
			}

			e.emitSent(OpACK, finalBlock, e.peerAddr)
		}
	}
}

// --- shared helpers ---

func (e *Engine) readNextBlock() ([]byte, bool, error) {
	buf := make([]byte, e.blksize)

	reader := e.req.Source
	if e.netasciiEnc != nil {
		reader = e.netasciiEnc
	}

	n := 0

	for n < len(buf) {
		m, err := reader.Read(buf[n:])
		n += m

		if err != nil {
			return buf[:n], true, nil
		}

		if m == 0 {
			break
		}
	}

	return buf[:n], n < e.blksize, nil
}

func (e *Engine) writeBlock(payload []byte) error {
	if e.netasciiDec != nil {
		if _, err := e.netasciiDec.Write(payload); err != nil {
			return &IoError{Op: "write sink", Err: err}
		}

		return nil
	}

	if err := e.req.Sink.Write(payload); err != nil {
		return &IoError{Op: "write sink", Err: err}
	}

	return nil
}

func (e *Engine) ackFor(block uint16, rawLen int) ([]byte, bool, error) {
	pkt := &Packet{Opcode: OpACK, Block: block}

	b, err := pkt.MarshalBinary()
	if err != nil {
		return nil, false, err
	}

	return b, rawLen < e.blksize, nil
}

func (e *Engine) establishPeer(addr net.Addr) {
	if e.peerTID == 0 {
		e.peerTID = TID(addr)
		e.peerAddr = addr
	}
}

func (e *Engine) transmitTo(b []byte, addr net.Addr) error {
	if _, err := e.conn.WriteTo(b, addr); err != nil {
		return &IoError{Op: "write datagram", Err: err}
	}

	return nil
}

func (e *Engine) sendDecodeError(decErr error) error {
	if we, ok := decErr.(wireError); ok {
		return e.sendError(we)
	}

	return decErr
}

// sendError sends an ERROR packet best-effort and returns the original
// error so callers can propagate it. The packet is written once; only a
// failed write is retried, up to MaxRetries more times, sleeping timeout
// after each failed attempt.
func (e *Engine) sendError(werr wireError) error {
	pkt := &Packet{Opcode: OpERROR, ErrCode: werr.Code(), Message: werr.Error()}

	b, merr := pkt.MarshalBinary()
	if merr == nil {
		for i := 0; i <= MaxRetries; i++ {
			if _, werr := e.conn.WriteTo(b, e.peerAddr); werr == nil {
				e.emitSent(OpERROR, 0, e.peerAddr)

				break
			}

			time.Sleep(e.timeout)
		}
	}

	return werr
}

func (e *Engine) emitSent(op Opcode, block uint16, peer net.Addr) {
	e.sink.Emit(Event{Kind: KindPacket, Direction: DirSent, Peer: peer, LocalTID: e.localTID(), Packet: op, Block: block})
}

func (e *Engine) emitRecv(p *Packet, peer net.Addr) {
	e.sink.Emit(Event{
		Kind: KindPacket, Direction: DirReceived, Peer: peer, LocalTID: e.localTID(),
		Packet: p.Opcode, Block: p.Block, ErrCode: p.ErrCode, Message: p.Message, Options: p.Options,
	})
}

func (e *Engine) localTID() int {
	if e.conn == nil {
		return 0
	}

	return TID(e.conn.LocalAddr())
}
