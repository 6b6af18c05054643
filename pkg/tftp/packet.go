package tftp

import (
	"bytes"
	"encoding/binary"
	"strconv"
)

// Packet is a tagged union over the five wire packet kinds. Only the
// fields relevant to Opcode are meaningful; encode/decode dispatch on it.
type Packet struct {
	Opcode Opcode

	// RRQ / WRQ
	Filename string
	Mode     Mode
	Options  OptionSet

	// DATA
	Block   uint16
	Payload []byte

	// ACK carries Block only.

	// ERROR
	ErrCode ErrCode
	Message string

	// OACK carries Options only.
}

// MarshalBinary encodes the packet to its wire form.
func (p *Packet) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, p.Opcode); err != nil {
		return nil, err
	}

	switch p.Opcode {
	case OpRRQ, OpWRQ:
		b.WriteString(p.Filename)
		b.WriteByte(0)
		b.WriteString(string(p.Mode))
		b.WriteByte(0)
		writeOptions(b, p.Options)
	case OpDATA:
		if err := binary.Write(b, binary.BigEndian, p.Block); err != nil {
			return nil, err
		}

		b.Write(p.Payload)
	case OpACK:
		if err := binary.Write(b, binary.BigEndian, p.Block); err != nil {
			return nil, err
		}
	case OpERROR:
		if err := binary.Write(b, binary.BigEndian, p.ErrCode); err != nil {
			return nil, err
		}

		b.WriteString(p.Message)
		b.WriteByte(0)
	case OpOACK:
		writeOptions(b, p.Options)
	default:
		return nil, &MalformedPacketError{Reason: "unknown opcode on encode"}
	}

	return b.Bytes(), nil
}

func writeOptions(b *bytes.Buffer, opts OptionSet) {
	for _, name := range opts.Names() {
		v, _ := opts.Get(name)

		b.WriteString(name)
		b.WriteByte(0)
		b.WriteString(strconv.FormatUint(v, 10))
		b.WriteByte(0)
	}
}

// DecodePacket decodes a received datagram. It fails with
// *MalformedPacketError when a string is not NUL-terminated within the
// datagram, the opcode is outside {1..6}, or the fixed header overruns
// the datagram length.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, &MalformedPacketError{Reason: "datagram shorter than opcode"}
	}

	op := Opcode(binary.BigEndian.Uint16(data[0:2]))
	if !op.valid() {
		return nil, &MalformedPacketError{Reason: "opcode out of range"}
	}

	p := &Packet{Opcode: op}
	rest := data[2:]

	switch op {
	case OpRRQ, OpWRQ:
		filename, rest1, err := readCString(rest)
		if err != nil {
			return nil, err
		}

		modeStr, rest2, err := readCString(rest1)
		if err != nil {
			return nil, err
		}

		mode, err := ParseMode(modeStr)
		if err != nil {
			return nil, err
		}

		opts, err := readOptions(rest2)
		if err != nil {
			return nil, err
		}

		p.Filename = filename
		p.Mode = mode
		p.Options = opts
	case OpDATA:
		if len(rest) < 2 {
			return nil, &MalformedPacketError{Reason: "DATA header too short"}
		}

		p.Block = binary.BigEndian.Uint16(rest[0:2])
		p.Payload = rest[2:]
	case OpACK:
		if len(rest) < 2 {
			return nil, &MalformedPacketError{Reason: "ACK header too short"}
		}

		p.Block = binary.BigEndian.Uint16(rest[0:2])
	case OpERROR:
		if len(rest) < 2 {
			return nil, &MalformedPacketError{Reason: "ERROR header too short"}
		}

		p.ErrCode = ErrCode(binary.BigEndian.Uint16(rest[0:2]))

		msg, _, err := readCString(rest[2:])
		if err != nil {
			return nil, err
		}

		p.Message = msg
	case OpOACK:
		opts, err := readOptions(rest)
		if err != nil {
			return nil, err
		}

		p.Options = opts
	}

	return p, nil
}

// readCString reads bytes up to and including the first NUL, returning
// the string without the terminator and the remaining slice.
func readCString(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, &MalformedPacketError{Reason: "string not NUL-terminated"}
	}

	return string(data[:idx]), data[idx+1:], nil
}

// readOptions parses the option trailer shared by RRQ/WRQ/OACK. Unknown
// option names are skipped along with their value; a value that fails
// integer parse is skipped, not an error; duplicates keep the first
// occurrence; names are lowercased.
func readOptions(data []byte) (OptionSet, error) {
	opts := NewOptionSet()

	for len(data) > 0 {
		name, rest1, err := readCString(data)
		if err != nil {
			return OptionSet{}, err
		}

		valStr, rest2, err := readCString(rest1)
		if err != nil {
			return OptionSet{}, err
		}

		data = rest2

		name = toLower(name)

		switch name {
		case OptBlksize, OptTimeout, OptTsize:
			v, err := strconv.ParseUint(valStr, 10, 64)
			if err != nil {
				continue
			}

			opts.Set(name, v)
		default:
			continue
		}
	}

	return opts, nil
}
