package render

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	okWrites int
	writes   int
	buf      bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.okWrites {
		return 0, errors.New("broken pipe")
	}
	return w.buf.Write(p)
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestTeeIdenticalSinks(t *testing.T) {
	src := testDocument(3333)

	for _, size := range []int{1, 3, 100, 3333, 10000} {
		var a, b bytes.Buffer
		var total, chunks int
		for r := range Tee(bytes.NewReader(src), size, Sink{"a", &a}, Sink{"b", &b}) {
			require.NoError(t, r.ReadErr)
			assert.Equal(t, chunks, r.Index)
			assert.LessOrEqual(t, r.Size, size)
			total += r.Size
			chunks++
		}
		assert.Equal(t, len(src), total)
		assert.Equal(t, src, a.Bytes())
		assert.Equal(t, src, b.Bytes())
	}
}

func TestTeeFailedSinkIsSkipped(t *testing.T) {
	src := testDocument(1000)
	good := &bytes.Buffer{}
	bad := &failingWriter{okWrites: 2}

	var failures int
	for r := range Tee(iotest.HalfReader(bytes.NewReader(src)), 64, Sink{"good", good}, Sink{"bad", bad}) {
		require.NoError(t, r.ReadErr)
		assert.False(t, r.Failed(0))
		if r.Failed(1) {
			failures++
		}
	}

	assert.Equal(t, 1, failures)
	assert.Equal(t, 3, bad.writes)
	assert.Equal(t, src, good.Bytes())
	assert.Equal(t, src[:64], bad.buf.Bytes())
}

func TestTeeShortWrite(t *testing.T) {
	var results []ChunkResult
	for r := range Tee(bytes.NewReader([]byte("hello")), 8, Sink{"short", shortWriter{}}) {
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].SinkErrs[0], io.ErrShortWrite)
}

func TestTeeReadError(t *testing.T) {
	boom := errors.New("boom")
	src := io.MultiReader(bytes.NewReader([]byte("abcdef")), iotest.ErrReader(boom))

	var sink bytes.Buffer
	var last ChunkResult
	for r := range Tee(src, 4, Sink{"s", &sink}) {
		last = r
	}
	assert.ErrorIs(t, last.ReadErr, boom)
	assert.Equal(t, "abcdef", sink.String())
}

func TestTeeDataWithError(t *testing.T) {
	var sink bytes.Buffer
	for r := range Tee(iotest.DataErrReader(bytes.NewReader([]byte("payload"))), 3, Sink{"s", &sink}) {
		require.NoError(t, r.ReadErr)
	}
	assert.Equal(t, "payload", sink.String())
}

func TestTeeStopsWhenConsumerStops(t *testing.T) {
	src := testDocument(1000)
	var sink bytes.Buffer

	for r := range Tee(bytes.NewReader(src), 100, Sink{"s", &sink}) {
		if r.Index == 1 {
			break
		}
	}
	assert.Equal(t, 200, sink.Len())
}

func TestTeeEmptySource(t *testing.T) {
	var n int
	for range Tee(bytes.NewReader(nil), 16, Sink{"s", io.Discard}) {
		n++
	}
	assert.Zero(t, n)
}
