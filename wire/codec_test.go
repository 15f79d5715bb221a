package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// loopback implements io.ReadWriter over two independent buffers so Send
// and Recv on the same Codec don't read back their own writes.
type loopback struct {
	out *bytes.Buffer
	in  *bytes.Buffer
}

func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }

func pairedCodecs(t *testing.T, variant Variant) (*Codec, *Codec) {
	t.Helper()
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	cCodec, err := NewCodec(&loopback{out: a, in: b}, variant)
	require.NoError(t, err)
	sCodec, err := NewCodec(&loopback{out: b, in: a}, variant)
	require.NoError(t, err)

	// Drain each side's framing magic so it isn't mistaken for a frame.
	magic := make([]byte, 4)
	_, err = io.ReadFull(b, magic)
	require.NoError(t, err)
	_, err = io.ReadFull(a, magic)
	require.NoError(t, err)

	return cCodec, sCodec
}

func TestCodecRoundTripIntermediate(t *testing.T) {
	client, server := pairedCodecs(t, Intermediate)
	for _, n := range []int{4, 1, 1024, 1 << 20} {
		payload := bytes.Repeat([]byte{0xab}, n)
		require.NoError(t, client.Send(payload))
		got, err := server.Recv()
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestCodecRoundTripFull(t *testing.T) {
	client, server := pairedCodecs(t, Full)
	for i := 0; i < 5; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 256+i)
		require.NoError(t, client.Send(payload))
		got, err := server.Recv()
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestCodecFullBadCrcDetected(t *testing.T) {
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	client, err := NewCodec(&loopback{out: a, in: b}, Full)
	require.NoError(t, err)
	server, err := NewCodec(&loopback{out: b, in: a}, Full)
	require.NoError(t, err)

	magic := make([]byte, 4)
	_, err = io.ReadFull(b, magic)
	require.NoError(t, err)
	_, err = io.ReadFull(a, magic)
	require.NoError(t, err)

	require.NoError(t, client.Send([]byte("hello world")))

	// Flip a bit inside the payload region of the buffered frame before
	// the peer decodes it: length(4) + seq(4) + "hello world".
	raw := a.Bytes()
	raw[10] ^= 0xff

	_, err = server.Recv()
	require.ErrorIs(t, err, ErrBadCrc)
}

func TestCodecFrameTooLarge(t *testing.T) {
	client, _ := pairedCodecs(t, Intermediate)
	big := make([]byte, MaxFrameSize+1)
	err := client.Send(big)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
