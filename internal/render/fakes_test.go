package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing/iotest"
	"time"

	"pagepress/internal/models"
	"pagepress/internal/ports"
)

// fakeBackend hands out one fakeSession per Connect.
type fakeBackend struct {
	connectErr error
	page       *fakePage
	connects   atomic.Int32
	session    *fakeSession
}

func (b *fakeBackend) Connect(ctx context.Context) (ports.RenderSession, error) {
	b.connects.Add(1)
	if b.connectErr != nil {
		return nil, b.connectErr
	}
	b.session = &fakeSession{page: b.page}
	return b.session, nil
}

type fakeSession struct {
	page    *fakePage
	pageErr error
	closed  atomic.Bool
}

func (s *fakeSession) NewPage(ctx context.Context) (ports.RenderPage, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakePage replays scripted network events during Navigate.
type fakePage struct {
	mu       sync.Mutex
	listener func(ports.ResourceEvent)

	doc []byte
	// events are emitted synchronously during Navigate.
	events []ports.ResourceEvent
	// late events are emitted after lateDelay on another goroutine.
	late      []ports.ResourceEvent
	lateDelay time.Duration

	navigateErr  error
	blockNav     bool
	printErr     error
	readErrAfter int

	navigated atomic.Int32
	closed    atomic.Bool
}

func (p *fakePage) OnResource(fn func(ports.ResourceEvent)) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

func (p *fakePage) emit(ev ports.ResourceEvent) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string, until ports.WaitUntil) error {
	p.navigated.Add(1)
	if p.blockNav {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.navigateErr != nil {
		return p.navigateErr
	}
	for _, ev := range p.events {
		p.emit(ev)
	}
	if len(p.late) > 0 {
		late := p.late
		go func() {
			time.Sleep(p.lateDelay)
			for _, ev := range late {
				p.emit(ev)
			}
		}()
	}
	return nil
}

func (p *fakePage) PrintPDF(ctx context.Context) (io.ReadCloser, error) {
	if p.printErr != nil {
		return nil, p.printErr
	}
	var r io.Reader = iotest.HalfReader(bytes.NewReader(p.doc))
	if p.readErrAfter > 0 {
		r = io.MultiReader(
			bytes.NewReader(p.doc[:p.readErrAfter]),
			iotest.ErrReader(errors.New("stream handle closed")),
		)
	}
	return io.NopCloser(r), nil
}

func (p *fakePage) Close() error {
	p.closed.Store(true)
	return nil
}

// memStorage keeps committed objects in memory.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	createErr error
	// failAfter makes writers fail once this many bytes were written.
	failAfter int
	aborted   []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Provider() string { return "mem" }

func (m *memStorage) Create(ctx context.Context, key, contentType string) (ports.ObjectWriter, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return nil, ports.ErrObjectExists
	}
	return &memWriter{store: m, key: key}, nil
}

func (m *memStorage) Open(ctx context.Context, path string) (io.ReadCloser, ports.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, ports.ObjectInfo{}, ports.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), ports.ObjectInfo{ContentType: "application/pdf", Size: int64(len(b))}, nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *memStorage) get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	return b, ok
}

type memWriter struct {
	store *memStorage
	key   string
	buf   bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.store.failAfter > 0 && w.buf.Len()+len(p) > w.store.failAfter {
		return 0, errors.New("no space left on device")
	}
	return w.buf.Write(p)
}

func (w *memWriter) Commit() (string, error) {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.objects[w.key] = bytes.Clone(w.buf.Bytes())
	return w.key, nil
}

func (w *memWriter) Abort() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.aborted = append(w.store.aborted, w.key)
	return nil
}

type fakeRecords struct {
	mu      sync.Mutex
	err     error
	created []models.RenderRecord
}

func (f *fakeRecords) Create(ctx context.Context, ownerID, sourceURL, storagePath string) (*models.RenderRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := models.RenderRecord{
		ID:          "rec-" + storagePath,
		OwnerID:     ownerID,
		SourceURL:   sourceURL,
		StoragePath: storagePath,
		CreatedAt:   time.Now(),
	}
	f.created = append(f.created, rec)
	return &rec, nil
}

type fakeOrphans struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeOrphans) Push(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return nil
}

// fakeResponse records what the client would have received.
type fakeResponse struct {
	buf         bytes.Buffer
	contentType string
	filename    string
	begun       int
	// failAfterWrites makes every write after the first N fail.
	failAfterWrites int
	writes          int
}

func (r *fakeResponse) Begin(contentType, filename string) {
	r.begun++
	r.contentType = contentType
	r.filename = filename
}

func (r *fakeResponse) Write(p []byte) (int, error) {
	r.writes++
	if r.failAfterWrites > 0 && r.writes > r.failAfterWrites {
		return 0, errors.New("write: broken pipe")
	}
	return r.buf.Write(p)
}

func (r *fakeResponse) Started() bool { return r.buf.Len() > 0 }

func imageEvent(id string, phase ports.ResourcePhase) ports.ResourceEvent {
	return ports.ResourceEvent{ID: id, Phase: phase, Type: "Image", URL: "https://img.test/" + id}
}
