package fpga

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	writes [][]byte
	reply  []byte
}

func (c *recordingConn) Tx(w, r []byte) error {
	c.writes = append(c.writes, append([]byte(nil), w...))
	copy(r, c.reply)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func TestWriteOnlyAcceptsWords(t *testing.T) {
	conn := &recordingConn{}
	f := New(conn)

	require.NoError(t, f.Write([]byte{1, 2, 3}))
	require.NoError(t, f.Write([]byte{1, 2, 3, 4, 5}))
	require.NoError(t, f.Write(nil))
	require.Empty(t, conn.writes)

	require.NoError(t, f.Write([]byte{1, 2, 3, 4}))
	require.Equal(t, [][]byte{{1, 2, 3, 4}}, conn.writes)
}

func TestWriteTuningWordBigEndian(t *testing.T) {
	conn := &recordingConn{}
	f := New(conn)

	require.NoError(t, f.WriteTuningWord(0x78496B4C))
	require.Equal(t, [][]byte{{0x78, 0x49, 0x6B, 0x4C}}, conn.writes)
}

func TestReadPPSCount(t *testing.T) {
	conn := &recordingConn{reply: []byte{0xFF, 0x01, 0x7D, 0x78, 0x40}}
	f := New(conn)

	v, err := f.ReadPPSCount()
	require.NoError(t, err)
	require.Equal(t, uint32(25_000_000), v)
	require.Equal(t, [][]byte{{0x80, 0, 0, 0, 0}}, conn.writes)
}

func TestMock(t *testing.T) {
	f, m := NewMock(25_000_010)

	require.NoError(t, f.WriteTuningWord(7))
	require.NoError(t, f.WriteTuningWord(0))
	require.Equal(t, []uint32{7, 0}, m.Words())

	v, err := f.ReadPPSCount()
	require.NoError(t, err)
	require.Equal(t, uint32(25_000_010), v)

	boom := errors.New("boom")
	m.FailNext(1, boom)
	require.ErrorIs(t, f.WriteTuningWord(1), boom)
	require.NoError(t, f.WriteTuningWord(2))
	require.Equal(t, []uint32{7, 0, 2}, m.Words())
}
