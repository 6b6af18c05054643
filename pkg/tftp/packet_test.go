package tftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacket_RoundTrip_Request(t *testing.T) {
	opts := NewOptionSet()
	opts.Set(OptBlksize, 1024)
	opts.Set(OptTsize, 0)

	p := &Packet{Opcode: OpRRQ, Filename: "main-concepts.pdf", Mode: ModeOctet, Options: opts}

	b, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodePacket(b)
	require.NoError(t, err)

	require.Equal(t, p.Opcode, got.Opcode)
	require.Equal(t, p.Filename, got.Filename)
	require.Equal(t, p.Mode, got.Mode)
	require.Equal(t, opts.Names(), got.Options.Names())

	for _, name := range opts.Names() {
		want, _ := opts.Get(name)
		have, ok := got.Options.Get(name)
		require.True(t, ok)
		require.Equal(t, want, have)
	}
}

func TestPacket_RoundTrip_Data(t *testing.T) {
	p := &Packet{Opcode: OpDATA, Block: 42, Payload: []byte("hello world")}

	b, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodePacket(b)
	require.NoError(t, err)

	require.Equal(t, p.Block, got.Block)
	require.Equal(t, p.Payload, got.Payload)
}

func TestPacket_RoundTrip_Ack(t *testing.T) {
	p := &Packet{Opcode: OpACK, Block: 7}

	b, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodePacket(b)
	require.NoError(t, err)

	require.Equal(t, p.Block, got.Block)
}

func TestPacket_RoundTrip_Error(t *testing.T) {
	p := &Packet{Opcode: OpERROR, ErrCode: ErrFileNotFound, Message: "no such file"}

	b, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodePacket(b)
	require.NoError(t, err)

	require.Equal(t, p.ErrCode, got.ErrCode)
	require.Equal(t, p.Message, got.Message)
}

func TestPacket_RoundTrip_Oack(t *testing.T) {
	opts := NewOptionSet()
	opts.Set(OptTimeout, 10)

	p := &Packet{Opcode: OpOACK, Options: opts}

	b, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodePacket(b)
	require.NoError(t, err)

	v, ok := got.Options.Get(OptTimeout)
	require.True(t, ok)
	require.EqualValues(t, 10, v)
}

func TestDecodePacket_ModeCaseInsensitive(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("file.txt")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("OCTET")...)
	raw = append(raw, 0)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, ModeOctet, got.Mode)
}

func TestDecodePacket_UnterminatedFilename(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("file.txt")...)

	_, err := DecodePacket(raw)
	require.Error(t, err)

	var merr *MalformedPacketError
	require.ErrorAs(t, err, &merr)
}

func TestDecodePacket_InvalidOpcode(t *testing.T) {
	raw := []byte{0, 9, 0, 0}

	_, err := DecodePacket(raw)
	require.Error(t, err)
}

func TestDecodePacket_UnknownOptionSkipped(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("f")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("octet")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("weird")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("1")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("blksize")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("1024")...)
	raw = append(raw, 0)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.False(t, got.Options.Has("weird"))

	v, ok := got.Options.Get(OptBlksize)
	require.True(t, ok)
	require.EqualValues(t, 1024, v)
}

func TestDecodePacket_UnparsableOptionValueSkipped(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("f")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("octet")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("blksize")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("not-a-number")...)
	raw = append(raw, 0)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.False(t, got.Options.Has(OptBlksize))
}

func TestDecodePacket_DuplicateOptionKeepsFirst(t *testing.T) {
	raw := []byte{0, byte(OpRRQ)}
	raw = append(raw, []byte("f")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("octet")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("blksize")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("111")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("blksize")...)
	raw = append(raw, 0)
	raw = append(raw, []byte("222")...)
	raw = append(raw, 0)

	got, err := DecodePacket(raw)
	require.NoError(t, err)

	v, _ := got.Options.Get(OptBlksize)
	require.EqualValues(t, 111, v)
}
