package eventlog

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gotftp/tftp/pkg/tftp"
)

func TestSink_EmitPacketLogsAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := New(zap.New(core).Sugar())

	peer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000}

	sink.Emit(tftp.Event{
		Kind: tftp.KindPacket, Direction: tftp.DirSent, Peer: peer,
		Packet: tftp.OpDATA, Block: 3,
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

func TestSink_EmitStrangerTIDLogsAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := New(zap.New(core).Sugar())

	sink.Emit(tftp.Event{Kind: tftp.KindStrangerTID, Peer: &net.UDPAddr{Port: 1234}})

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestSink_EmitWithNilPeerDoesNotPanic(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	sink := New(zap.New(core).Sugar())

	require.NotPanics(t, func() {
		sink.Emit(tftp.Event{Kind: tftp.KindTimeout})
	})
}
