package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	transferred int64
	total       int64
}

func TestReader_ReportsEveryStep(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("x"), 10)
	var events []event
	pr := NewReader(bytes.NewReader(data), int64(len(data)), func(transferred, total int64) {
		events = append(events, event{transferred, total})
	})
	pr.Step = 4

	buf := make([]byte, 2)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, []event{{4, 10}, {8, 10}, {10, 10}}, events)
	assert.Equal(t, int64(10), pr.Transferred())
}

func TestReader_FinalReportOnce(t *testing.T) {
	t.Parallel()

	var calls int
	pr := NewReader(bytes.NewReader([]byte("hello")), -1, func(int64, int64) { calls++ })

	_, err := io.ReadAll(pr)
	require.NoError(t, err)
	_, err = pr.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, calls)
}

func TestReader_NilCallback(t *testing.T) {
	t.Parallel()

	data := []byte("hello")
	pr := NewReader(bytes.NewReader(data), int64(len(data)), nil)

	buf, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, buf)
}

func TestReader_CloseClosesUnderlying(t *testing.T) {
	t.Parallel()

	closed := false
	r := &mockCloser{
		Reader: bytes.NewReader([]byte("test")),
		onClose: func() error {
			closed = true
			return nil
		},
	}

	pr := NewReader(r, 4, nil)
	require.NoError(t, pr.Close())
	assert.True(t, closed)
}

func TestReader_CloseNonCloser(t *testing.T) {
	t.Parallel()

	pr := NewReader(bytes.NewReader([]byte("test")), 4, nil)
	require.NoError(t, pr.Close())
}

type mockCloser struct {
	io.Reader
	onClose func() error
}

func (m *mockCloser) Close() error {
	return m.onClose()
}
