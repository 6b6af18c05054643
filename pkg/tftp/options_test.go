package tftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateServer_EchoesOnlyRequestedOptions(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 1024)
	offered.Set(OptTsize, 0)

	ack, session, err := NegotiateServer(offered, true, 1024)
	require.NoError(t, err)
	require.Equal(t, []string{OptBlksize, OptTsize}, ack.Names())
	require.False(t, ack.Has(OptTimeout))
	require.Equal(t, 1024, session.Blksize)
	require.EqualValues(t, 1024, session.Tsize)
}

func TestNegotiateServer_TsizeOnWriteIsPassthrough(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptTsize, 2048)

	ack, session, err := NegotiateServer(offered, false, 999)
	require.NoError(t, err)

	v, ok := ack.Get(OptTsize)
	require.True(t, ok)
	require.EqualValues(t, 2048, v)
	require.EqualValues(t, 2048, session.Tsize)
}

func TestNegotiateServer_RejectsOutOfRangeBlksize(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 4)

	_, _, err := NegotiateServer(offered, true, 0)
	require.Error(t, err)

	var rej *OptionRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ErrOptionsFailed, rej.Code())
}

func TestNegotiateServer_RejectsOutOfRangeTimeout(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptTimeout, 0)

	_, _, err := NegotiateServer(offered, true, 0)
	require.Error(t, err)
}

func TestNegotiateClient_AcceptsLowerBlksize(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 1024)

	replied := NewOptionSet()
	replied.Set(OptBlksize, 512)

	session, err := NegotiateClient(offered, replied)
	require.NoError(t, err)
	require.Equal(t, 512, session.Blksize)
}

func TestNegotiateClient_RejectsHigherBlksize(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 512)

	replied := NewOptionSet()
	replied.Set(OptBlksize, 1024)

	_, err := NegotiateClient(offered, replied)
	require.Error(t, err)
}

func TestNegotiateClient_RequiresExactTimeoutMatch(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptTimeout, 5)

	replied := NewOptionSet()
	replied.Set(OptTimeout, 3)

	_, err := NegotiateClient(offered, replied)
	require.Error(t, err)
}

func TestNegotiateClient_RejectsUnsolicitedOption(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 1024)

	replied := NewOptionSet()
	replied.Set(OptBlksize, 512)
	replied.Set(OptTimeout, 9)

	_, err := NegotiateClient(offered, replied)
	require.Error(t, err)
}

func TestNegotiateClient_OmittedOptionRevertsToDefault(t *testing.T) {
	offered := NewOptionSet()
	offered.Set(OptBlksize, 1024)
	offered.Set(OptTimeout, 9)

	replied := NewOptionSet()
	replied.Set(OptBlksize, 1024)

	session, err := NegotiateClient(offered, replied)
	require.NoError(t, err)
	require.Equal(t, 1024, session.Blksize)
	require.Equal(t, DefaultTimeout, session.Timeout)
}

func TestOptionSet_DuplicateSetKeepsFirst(t *testing.T) {
	o := NewOptionSet()
	o.Set(OptBlksize, 111)
	o.Set(OptBlksize, 222)

	v, _ := o.Get(OptBlksize)
	require.EqualValues(t, 111, v)
	require.Equal(t, 1, o.Len())
}
