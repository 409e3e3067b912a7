package handlers

import (
	"errors"
	"fmt"
	"net/http"
)

// responseSink streams a render to the client, flushing every chunk so
// the caller sees the document as the browser produces it.
type responseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newResponseSink(w http.ResponseWriter) *responseSink {
	return &responseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *responseSink) Begin(contentType, filename string) {
	h := s.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
}

func (s *responseSink) Write(p []byte) (int, error) {
	if !s.started {
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}

func (s *responseSink) Started() bool { return s.started }

// discard drops the document headers so an error envelope can be sent.
func (s *responseSink) discard() {
	h := s.w.Header()
	h.Del("Content-Disposition")
	h.Del("Content-Type")
	h.Del("X-Content-Type-Options")
}
