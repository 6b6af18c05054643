package tftp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, raw []byte, chunk int) []byte {
	t.Helper()

	r := NewNetasciiEncoder(bytes.NewReader(raw))

	var out bytes.Buffer

	buf := make([]byte, chunk)

	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])

		if err == io.EOF {
			break
		}

		require.NoError(t, err)

		if n == 0 {
			break
		}
	}

	return out.Bytes()
}

func decodeAll(t *testing.T, encoded []byte, chunk int) []byte {
	t.Helper()

	var out bytes.Buffer

	w := NewNetasciiDecoder(&out)

	for i := 0; i < len(encoded); i += chunk {
		end := i + chunk
		if end > len(encoded) {
			end = len(encoded)
		}

		_, err := w.Write(encoded[i:end])
		require.NoError(t, err)
	}

	// Copy into a non-nil slice: an unwritten bytes.Buffer yields nil,
	// which would not compare equal to an empty input.
	return append([]byte{}, out.Bytes()...)
}

func TestNetascii_RoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		[]byte("line one\nline two\nline three"),
		[]byte("carriage\rreturn\ralone"),
		[]byte("mixed\r\nCRLF already present"),
		{},
		[]byte("\n\n\n"),
		[]byte("\r\r\r"),
		bytes.Repeat([]byte("a\nb\rc"), 200),
	}

	for _, raw := range cases {
		for _, chunk := range []int{1, 3, 7, 512} {
			encoded := encodeAll(t, raw, chunk)
			decoded := decodeAll(t, encoded, chunk)
			require.Equal(t, raw, decoded)
		}
	}
}

func TestNetascii_EncodeExpandsNewlineAndCR(t *testing.T) {
	encoded := encodeAll(t, []byte("a\nb\rc"), 512)
	require.Equal(t, []byte{'a', '\r', '\n', 'b', '\r', 0, 'c'}, encoded)
}

func TestNetascii_EncodeCarriesSplitAcrossSmallReads(t *testing.T) {
	// A 1-byte read buffer forces the 2-byte expansion of '\n' to split
	// across two Read calls; the second byte must be carried internally.
	encoded := encodeAll(t, []byte("\n"), 1)
	require.Equal(t, []byte{'\r', '\n'}, encoded)
}

func TestNetascii_DecodeCarriesCRAcrossWriteCalls(t *testing.T) {
	var out bytes.Buffer

	w := NewNetasciiDecoder(&out)

	_, err := w.Write([]byte{'\r'})
	require.NoError(t, err)

	_, err = w.Write([]byte{'\n'})
	require.NoError(t, err)

	require.Equal(t, []byte("\n"), out.Bytes())
}
