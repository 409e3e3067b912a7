package render

import (
	"errors"
	"io"
	"iter"
)

// Sink is one destination of a Tee.
type Sink struct {
	Name string
	W    io.Writer
}

// ChunkResult describes one relayed chunk.
type ChunkResult struct {
	Index int
	Size  int
	// SinkErrs holds, per sink in Tee order, the error from writing this
	// chunk. A sink that failed on an earlier chunk is skipped and its
	// entry stays nil.
	SinkErrs []error
	// ReadErr is set on the final result when the source failed.
	ReadErr error
}

// Failed reports whether sink i failed on this chunk.
func (r ChunkResult) Failed(i int) bool {
	return i < len(r.SinkErrs) && r.SinkErrs[i] != nil
}

// Tee relays src to every sink with a single read cursor. Each step
// reads one chunk of at most chunkSize bytes and writes it to all live
// sinks in order before the next read. Sinks receive identical byte
// sequences until they fail. The sequence is lazy and ends at EOF, on
// a read error, or when the consumer stops.
func Tee(src io.Reader, chunkSize int, sinks ...Sink) iter.Seq[ChunkResult] {
	return func(yield func(ChunkResult) bool) {
		buf := make([]byte, chunkSize)
		dead := make([]bool, len(sinks))

		for index := 0; ; {
			n, err := src.Read(buf)
			if n > 0 {
				res := ChunkResult{Index: index, Size: n, SinkErrs: make([]error, len(sinks))}
				for i, s := range sinks {
					if dead[i] {
						continue
					}
					if werr := writeFull(s.W, buf[:n]); werr != nil {
						res.SinkErrs[i] = werr
						dead[i] = true
					}
				}
				index++
				if !yield(res) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(ChunkResult{Index: index, SinkErrs: make([]error, len(sinks)), ReadErr: err})
				}
				return
			}
		}
	}
}

func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
