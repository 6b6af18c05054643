package tftp

import "fmt"

// ErrCode is the wire error code carried by an ERROR packet.
type ErrCode uint16

const (
	ErrNotDefined        ErrCode = 0
	ErrFileNotFound      ErrCode = 1
	ErrAccessViolation   ErrCode = 2
	ErrDiskFull          ErrCode = 3
	ErrIllegalOperation  ErrCode = 4
	ErrUnknownTID        ErrCode = 5
	ErrFileAlreadyExists ErrCode = 6
	ErrNoSuchUser        ErrCode = 7
	ErrOptionsFailed     ErrCode = 8
)

// wireError is implemented by every error kind the engine can terminate
// with that has a corresponding ERROR packet to send.
type wireError interface {
	error
	Code() ErrCode
}

// MalformedPacketError means a datagram could not be decoded: an
// unterminated string, an opcode outside {1..6}, or a header that
// overruns the datagram.
type MalformedPacketError struct {
	Reason string
}

func (e *MalformedPacketError) Error() string { return "malformed packet: " + e.Reason }
func (e *MalformedPacketError) Code() ErrCode { return ErrIllegalOperation }

// IllegalOperationError covers protocol-sequence violations: an ACK or
// DATA block number outside the allowed range, an unexpected opcode for
// the current state.
type IllegalOperationError struct {
	Reason string
}

func (e *IllegalOperationError) Error() string { return "illegal TFTP operation: " + e.Reason }
func (e *IllegalOperationError) Code() ErrCode { return ErrIllegalOperation }

// UnknownTIDError describes a datagram from a source port that does not
// match the established peer TID. The Timed Receiver does not construct
// or return it: it answers the stranger with ERROR 5 directly and keeps
// waiting.
type UnknownTIDError struct {
	Got, Want int
}

func (e *UnknownTIDError) Error() string {
	return fmt.Sprintf("unknown TID: got %d, want %d", e.Got, e.Want)
}
func (e *UnknownTIDError) Code() ErrCode { return ErrUnknownTID }

// FileNotFoundError: server-side read of a file that does not exist.
type FileNotFoundError struct {
	Filename string
}

func (e *FileNotFoundError) Error() string { return e.Filename + ": file not found" }
func (e *FileNotFoundError) Code() ErrCode { return ErrFileNotFound }

// FileExistsError: client-side read target already exists locally, or
// server-side write target already exists.
type FileExistsError struct {
	Filename string
}

func (e *FileExistsError) Error() string { return e.Filename + ": already exists" }
func (e *FileExistsError) Code() ErrCode { return ErrFileAlreadyExists }

// AccessViolationError covers path traversal attempts and local I/O
// permission failures distinct from not-found/exists.
type AccessViolationError struct {
	Reason string
}

func (e *AccessViolationError) Error() string { return "access violation: " + e.Reason }
func (e *AccessViolationError) Code() ErrCode { return ErrAccessViolation }

// DiskFullError: insufficient local space for a client-initiated read
// whose negotiated tsize exceeds free space. A sink write that fails
// mid-transfer, for lack of room or otherwise, surfaces as *IoError.
type DiskFullError struct {
	Reason string
}

func (e *DiskFullError) Error() string { return "disk full: " + e.Reason }
func (e *DiskFullError) Code() ErrCode { return ErrDiskFull }

// OptionRejectedError: an offered or replied option value is out of
// range or was not offered by the peer.
type OptionRejectedError struct {
	Reason string
}

func (e *OptionRejectedError) Error() string { return "option negotiation failed: " + e.Reason }
func (e *OptionRejectedError) Code() ErrCode { return ErrOptionsFailed }

// TimeoutError: the retransmission budget for one logical step was
// exhausted with no reply. Not sent on the wire.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string { return "timed out waiting for " + e.Step }

// PeerError wraps an ERROR packet received from the other side. Logged
// and aborted, never echoed back.
type PeerError struct {
	Code_   ErrCode
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer reported error %d: %s", e.Code_, e.Message)
}

// IoError wraps a local file or socket failure unrelated to protocol
// state.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }
