// Package browserless drives a remote headless Chrome over the DevTools
// protocol. Each session is one websocket connection; each page is a
// fresh target inside it.
package browserless

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	cdpio "github.com/chromedp/cdproto/io"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
)

// Backend connects to a browserless websocket endpoint.
type Backend struct {
	endpoint string
	log      *logger.Logger
}

// New returns a Backend for wsURL, which must already carry any token.
func New(wsURL string, log *logger.Logger) *Backend {
	return &Backend{endpoint: wsURL, log: log.WithComponent("browserless")}
}

// Connect dials the remote browser. The session ends when ctx is
// canceled or Close is called.
func (b *Backend) Connect(ctx context.Context) (ports.RenderSession, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, b.endpoint, chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			b.log.Warn("devtools protocol error", "detail", fmt.Sprintf(format, args...))
		}),
	)

	// Run with no actions allocates the browser and attaches to it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &Session{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel, log: b.log}, nil
}

// Session is one live browser connection.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         *logger.Logger
	once        sync.Once
}

// NewPage opens a new target with network and page events enabled.
func (s *Session) NewPage(ctx context.Context) (ports.RenderPage, error) {
	pageCtx, cancel := chromedp.NewContext(s.ctx)
	p := &Page{ctx: pageCtx, cancel: cancel}
	chromedp.ListenTarget(pageCtx, p.handle)

	// The first Run attaches the target and starts its event loop on the
	// context it is given, so it must be the page's own context. ctx only
	// bounds how long the attach may take.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(pageCtx)
	if !stop() {
		cancel()
		return nil, fmt.Errorf("open page: %w", ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := p.run(ctx, network.Enable(), page.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p, nil
}

// Close disconnects from the browser. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	return err
}

// Page is one browser target.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   func(ports.ResourceEvent)
	domReady   chan struct{}
	loaded     chan struct{}
	closeOnce  sync.Once
	domClosed  bool
	loadClosed bool
}

func (p *Page) OnResource(fn func(ports.ResourceEvent)) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

// handle runs on the connection's event goroutine and must not block.
func (p *Page) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		url := ""
		if e.Request != nil {
			url = e.Request.URL
		}
		p.emit(ports.ResourceEvent{ID: string(e.RequestID), Phase: ports.ResourceRequested, Type: string(e.Type), URL: url})
	case *network.EventResponseReceived:
		url := ""
		if e.Response != nil {
			url = e.Response.URL
		}
		p.emit(ports.ResourceEvent{ID: string(e.RequestID), Phase: ports.ResourceResponded, Type: string(e.Type), URL: url})
	case *network.EventLoadingFailed:
		p.emit(ports.ResourceEvent{ID: string(e.RequestID), Phase: ports.ResourceFailed, Type: string(e.Type)})
	case *page.EventDomContentEventFired:
		p.mu.Lock()
		if p.domReady != nil && !p.domClosed {
			close(p.domReady)
			p.domClosed = true
		}
		p.mu.Unlock()
	case *page.EventLoadEventFired:
		p.mu.Lock()
		if p.loaded != nil && !p.loadClosed {
			close(p.loaded)
			p.loadClosed = true
		}
		p.mu.Unlock()
	}
}

func (p *Page) emit(ev ports.ResourceEvent) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// arm resets the lifecycle signals ahead of a navigation.
func (p *Page) arm(until ports.WaitUntil) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domReady, p.domClosed = make(chan struct{}), false
	p.loaded, p.loadClosed = make(chan struct{}), false
	if until == ports.WaitLoad {
		return p.loaded
	}
	return p.domReady
}

// Navigate loads url and blocks until the until lifecycle point or ctx
// ends. A navigation the browser rejects outright is an error.
func (p *Page) Navigate(ctx context.Context, url string, until ports.WaitUntil) error {
	ready := p.arm(until)

	var res page.NavigateReturns
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return cdp.Execute(c, page.CommandNavigate, page.Navigate(url), &res)
	}))
	if err != nil {
		return err
	}
	if res.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, res.ErrorText)
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("page closed during navigation: %w", p.ctx.Err())
	}
}

// PrintPDF asks the browser to print the page and returns a reader
// over the resulting IO stream.
func (p *Page) PrintPDF(ctx context.Context) (io.ReadCloser, error) {
	var handle cdpio.StreamHandle
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		_, h, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			WithTransferMode(page.PrintToPDFTransferModeReturnAsStream).
			Do(c)
		handle = h
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	if handle == "" {
		return nil, fmt.Errorf("print to pdf: browser returned no stream")
	}
	return &pdfStream{page: p, ctx: ctx, handle: handle}, nil
}

func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
	})
	return err
}

// run executes actions on the page target under ctx's deadline.
// Canceling the derived context leaves the target open.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// pdfStream reads a DevTools IO stream one IO.read call at a time.
type pdfStream struct {
	page   *Page
	ctx    context.Context
	handle cdpio.StreamHandle
	buf    []byte
	eof    bool
	closed bool
}

func (s *pdfStream) Read(b []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for len(s.buf) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		chunk, eof, err := s.next(len(b))
		if err != nil {
			return 0, err
		}
		s.buf, s.eof = chunk, eof
	}
	n := copy(b, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *pdfStream) next(size int) ([]byte, bool, error) {
	var res cdpio.ReadReturns
	err := s.page.run(s.ctx, chromedp.ActionFunc(func(c context.Context) error {
		return cdp.Execute(c, cdpio.CommandRead, cdpio.Read(s.handle).WithSize(int64(size)), &res)
	}))
	if err != nil {
		return nil, false, fmt.Errorf("read pdf stream: %w", err)
	}
	data, err := decodeChunk(res.Data, res.Base64encoded)
	if err != nil {
		return nil, false, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, res.EOF, nil
}

func (s *pdfStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.page.run(context.WithoutCancel(s.ctx), chromedp.ActionFunc(func(c context.Context) error {
		return cdpio.Close(s.handle).Do(c)
	}))
}

func decodeChunk(data string, b64 bool) ([]byte, error) {
	if !b64 {
		return []byte(data), nil
	}
	return base64.StdEncoding.DecodeString(data)
}
