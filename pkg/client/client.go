package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gotftp/tftp/pkg/tftp"
)

// Connector is the client surface the CLI drives.
type Connector interface {
	Connect(addr string) error
	Get(filename string) error
	Put(filename string) error
	SetTimeout(timeout uint)
	SetBlksize(blksize uint)
	SetMode(mode string) error
	SetTrace(trace bool)
	Close() error
}

// Client is the TFTP client: it resolves a server address once via
// Connect, then drives Get/Put through the Transfer Engine over a
// fresh ephemeral socket per transfer.
type Client struct {
	logger  *zap.SugaredLogger
	sink    tftp.EventSink
	raddr   net.Addr
	timeout time.Duration
	blksize int
	mode    tftp.Mode
	trace   bool
	sockets tftp.SocketFactory
}

// NewClient builds a Connector logging through l and forwarding engine
// events to sink (pass tftp.NopEventSink{} for none).
func NewClient(l *zap.SugaredLogger, sink tftp.EventSink) Connector {
	if sink == nil {
		sink = tftp.NopEventSink{}
	}

	return &Client{
		logger:  l,
		sink:    sink,
		timeout: tftp.DefaultTimeout * time.Second,
		blksize: tftp.DefaultBlksize,
		mode:    tftp.ModeOctet,
		sockets: tftp.UDPSocketFactory{},
	}
}

func (c *Client) Connect(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}

	c.raddr = raddr

	return nil
}

func (c *Client) SetTimeout(timeout uint) { c.timeout = time.Duration(timeout) * time.Second }
func (c *Client) SetBlksize(blksize uint) { c.blksize = int(blksize) }
func (c *Client) SetTrace(trace bool)     { c.trace = trace }
func (c *Client) Close() error            { return nil }

// SetMode selects the transfer mode (octet or netascii) used by the
// next Get/Put.
func (c *Client) SetMode(mode string) error {
	m, err := tftp.ParseMode(mode)
	if err != nil {
		return err
	}

	c.mode = m

	return nil
}

func (c *Client) offeredOptions(tsize uint64, announceTsize bool) tftp.OptionSet {
	opts := tftp.NewOptionSet()

	if c.blksize != tftp.DefaultBlksize {
		opts.Set(tftp.OptBlksize, uint64(c.blksize))
	}

	if c.timeout != tftp.DefaultTimeout*time.Second {
		opts.Set(tftp.OptTimeout, uint64(c.timeout/time.Second))
	}

	if announceTsize {
		opts.Set(tftp.OptTsize, tsize)
	}

	return opts
}

func (c *Client) eventSink() tftp.EventSink {
	if c.trace {
		return teeSink{a: c.sink, b: consoleSink{}}
	}

	return c.sink
}

// Get downloads filename from the connected server into the current
// directory under the same name.
func (c *Client) Get(filename string) error {
	if c.raddr == nil {
		return fmt.Errorf("not connected")
	}

	sink, err := openDestination(filename)
	if err != nil {
		return err
	}

	conn, err := c.sockets.ListenUDP("0.0.0.0:0")
	if err != nil {
		_ = sink.Abort()

		return fmt.Errorf("opening local socket: %w", err)
	}

	defer conn.Close()

	req := tftp.TransferRequest{
		Side: tftp.SideClient, Role: tftp.RoleRead, Peer: c.raddr,
		Filename: filename, Mode: c.mode, Options: c.offeredOptions(0, true),
		Sink: sink,
		CheckSpace: func(required uint64) (bool, error) {
			return freeSpaceAt(filepath.Dir(filename), required)
		},
	}

	engine := tftp.NewEngine(req, conn, c.eventSink())

	return engine.Run()
}

// Put uploads filename to the connected server, with content drained
// from stdin into a host-chosen staging file up front (so tsize is
// known before the WRQ goes out); the staging file is removed when the
// transfer ends, whether it succeeded or not.
func (c *Client) Put(filename string) error {
	if c.raddr == nil {
		return fmt.Errorf("not connected")
	}

	source, size, stagePath, err := stageStdin()
	if err != nil {
		return err
	}

	defer func() {
		_ = source.f.Close()
		_ = os.Remove(stagePath)
	}()

	conn, err := c.sockets.ListenUDP("0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("opening local socket: %w", err)
	}

	defer conn.Close()

	req := tftp.TransferRequest{
		Side: tftp.SideClient, Role: tftp.RoleWrite, Peer: c.raddr,
		Filename: filename, Mode: c.mode, Options: c.offeredOptions(size, true),
		Source: source,
	}

	engine := tftp.NewEngine(req, conn, c.eventSink())

	return engine.Run()
}
