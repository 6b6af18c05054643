// Package server implements the TFTP Server Dispatcher: a single
// well-known-port listener that accepts RRQ/WRQ datagrams and spawns an
// independent Transfer Engine, on its own ephemeral socket, per
// accepted request.
package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/gotftp/tftp/internal/utils"
	"github.com/gotftp/tftp/pkg/tftp"
)

// Server is the dispatcher bound to the TFTP well-known port.
type Server struct {
	port    string
	root    string
	logger  *zap.SugaredLogger
	sink    tftp.EventSink
	conn    net.PacketConn
	timeout time.Duration
	ready   chan struct{}
	sockets tftp.SocketFactory
}

// NewServer builds a Server that will serve files rooted at root once
// ListenAndServe is called. sink receives every engine Event across
// every transfer; pass tftp.NopEventSink{} to disable.
func NewServer(l *zap.SugaredLogger, sink tftp.EventSink, port, root string, timeout time.Duration) *Server {
	if sink == nil {
		sink = tftp.NopEventSink{}
	}

	return &Server{
		logger: l, sink: sink, port: port, root: root, timeout: timeout,
		ready: make(chan struct{}), sockets: tftp.UDPSocketFactory{},
	}
}

// Addr blocks until the well-known-port socket is bound and returns its
// local address. Useful for tests that bind an ephemeral port (":0").
func (s *Server) Addr() net.Addr {
	<-s.ready

	return s.conn.LocalAddr()
}

// ListenAndServe binds the well-known port and dispatches one goroutine
// per accepted request until Close is called.
func (s *Server) ListenAndServe() error {
	conn, err := s.sockets.ListenUDP(fmt.Sprintf(":%s", s.port))
	if err != nil {
		s.logger.Error(err.Error())

		return utils.ErrStartingServer
	}

	s.conn = conn
	close(s.ready)

	buf := make([]byte, tftp.MaxDatagram)

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		if n == 0 {
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		go s.handleRequest(addr, datagram)
	}
}

// Close shuts down the well-known-port listener. In-flight transfers,
// each on its own socket, are unaffected.
func (s *Server) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing listener: %w", err)
	}

	return nil
}

func (s *Server) handleRequest(peer net.Addr, datagram []byte) {
	req, err := tftp.DecodePacket(datagram)
	if err != nil {
		s.logger.Warnw("dropping malformed request", "peer", peer, "err", err)

		return
	}

	if req.Opcode != tftp.OpRRQ && req.Opcode != tftp.OpWRQ {
		s.logger.Warnw("dropping unexpected opcode on well-known port", "peer", peer, "opcode", req.Opcode.String())

		return
	}

	conn, err := s.sockets.ListenUDP(":0")
	if err != nil {
		s.logger.Errorw("opening per-transfer socket", "peer", peer, "err", err)

		return
	}

	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Errorw("closing per-transfer socket", "peer", peer, "err", err)
		}
	}()

	path, perr := resolvePath(s.root, req.Filename)
	if perr != nil {
		s.replyEarlyError(conn, peer, perr)

		return
	}

	tr := tftp.TransferRequest{
		Side: tftp.SideServer, Peer: peer, Filename: req.Filename,
		Mode: req.Mode, Options: req.Options,
	}

	var closer interface{ Close() error }

	switch req.Opcode {
	case tftp.OpRRQ:
		tr.Role = tftp.RoleRead

		f, size, oerr := openForRead(path)
		if oerr != nil {
			s.replyEarlyError(conn, peer, oerr)

			return
		}

		tr.Source = f
		tr.FileSize = size
		closer = f
	case tftp.OpWRQ:
		tr.Role = tftp.RoleWrite

		f, oerr := openForWrite(path)
		if oerr != nil {
			s.replyEarlyError(conn, peer, oerr)

			return
		}

		tr.Sink = f
		closer = f
	}

	defer func() {
		if err := closer.Close(); err != nil {
			s.logger.Errorw("closing transfer file", "path", path, "err", err)
		}
	}()

	engine := tftp.NewEngine(tr, conn, s.sink)

	if err := engine.Run(); err != nil {
		s.logger.Infow("transfer ended", "peer", peer, "filename", req.Filename, "err", err)

		return
	}

	s.logger.Infow("transfer completed", "peer", peer, "filename", req.Filename)
}

// replyEarlyError answers a request the server will not honor (bad
// path, missing file, already-exists) with a best-effort ERROR on the
// freshly opened per-transfer socket, establishing the TID the client
// expects its ERROR reply to come from.
func (s *Server) replyEarlyError(conn net.PacketConn, peer net.Addr, err error) {
	we, ok := err.(interface {
		error
		Code() tftp.ErrCode
	})
	if !ok {
		s.logger.Errorw("cannot express error on wire", "peer", peer, "err", err)

		return
	}

	pkt := &tftp.Packet{Opcode: tftp.OpERROR, ErrCode: we.Code(), Message: we.Error()}

	b, merr := pkt.MarshalBinary()
	if merr != nil {
		return
	}

	if _, werr := conn.WriteTo(b, peer); werr != nil {
		s.logger.Errorw("sending early error", "peer", peer, "err", werr)
	}
}
