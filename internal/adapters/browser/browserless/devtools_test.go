package browserless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
)

// devtoolsServer speaks just enough of the DevTools protocol for one
// session: targets attach, navigation fires DOMContentLoaded and
// printing hands back a stream readable with IO.read.
type devtoolsServer struct {
	srv     *httptest.Server
	pdf     []byte
	targets atomic.Int32

	mu      sync.Mutex
	methods []string
}

type cdpRequest struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type cdpReply struct {
	ID        int64  `json:"id,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method,omitempty"`
	Params    any    `json:"params,omitempty"`
	Result    any    `json:"result,omitempty"`
}

func newDevtoolsServer(t *testing.T, pdf []byte) *devtoolsServer {
	t.Helper()
	d := &devtoolsServer{pdf: pdf}
	d.srv = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *devtoolsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(d.srv.URL, "http") + "?token=test"
}

func (d *devtoolsServer) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.methods)
}

func (d *devtoolsServer) serve(w http.ResponseWriter, r *http.Request) {
	var upgrader websocket.Upgrader
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req cdpRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		d.mu.Lock()
		d.methods = append(d.methods, req.Method)
		d.mu.Unlock()

		for _, out := range d.answer(req) {
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}

func (d *devtoolsServer) answer(req cdpRequest) []cdpReply {
	result := map[string]any{}
	var events []cdpReply
	event := func(method string, params any) {
		events = append(events, cdpReply{SessionID: req.SessionID, Method: method, Params: params})
	}

	switch req.Method {
	case "Target.createTarget":
		result["targetId"] = fmt.Sprintf("target-%d", d.targets.Add(1))
	case "Target.attachToTarget":
		var p struct {
			TargetID string `json:"targetId"`
		}
		_ = json.Unmarshal(req.Params, &p)
		result["sessionId"] = "session-" + p.TargetID
	case "Runtime.evaluate":
		result["result"] = map[string]any{"type": "object", "className": "Window"}
	case "Page.navigate":
		result["frameId"] = "frame-1"
		result["loaderId"] = "loader-1"
		event("Network.requestWillBeSent", map[string]any{
			"requestId":   "img-1",
			"loaderId":    "loader-1",
			"documentURL": "https://example.com/",
			"request": map[string]any{
				"url":              "https://example.com/a.png",
				"method":           "GET",
				"headers":          map[string]any{},
				"initialPriority":  "Low",
				"referrerPolicy":   "no-referrer",
				"mixedContentType": "none",
			},
			"timestamp": 1.0,
			"wallTime":  1.0,
			"initiator": map[string]any{"type": "parser"},
			"type":      "Image",
		})
		event("Page.domContentEventFired", map[string]any{"timestamp": 2.0})
	case "Page.printToPDF":
		result["data"] = ""
		result["stream"] = "stream-1"
	case "IO.read":
		result["base64Encoded"] = true
		result["data"] = base64.StdEncoding.EncodeToString(d.pdf)
		result["eof"] = true
	}
	return append([]cdpReply{{ID: req.ID, SessionID: req.SessionID, Result: result}}, events...)
}

func TestSessionNavigatesAndPrints(t *testing.T) {
	doc := []byte("%PDF-1.7\n1 0 obj << >> endobj\n%%EOF\n")
	d := newDevtoolsServer(t, doc)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := New(d.wsURL(), logger.NewDefault()).Connect(ctx)
	require.NoError(t, err)
	defer session.Close()

	pg, err := session.NewPage(ctx)
	require.NoError(t, err)
	defer pg.Close()

	var mu sync.Mutex
	var seen []ports.ResourceEvent
	pg.OnResource(func(ev ports.ResourceEvent) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	// The page must keep reading its target's messages after NewPage
	// returns; otherwise this only ends at the deadline.
	navCtx, navCancel := context.WithTimeout(ctx, 3*time.Second)
	defer navCancel()
	start := time.Now()
	require.NoError(t, pg.Navigate(navCtx, "https://example.com/", ports.WaitDOMContentLoaded))
	assert.Less(t, time.Since(start), 2*time.Second)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, ports.ResourceEvent{ID: "img-1", Phase: ports.ResourceRequested, Type: "Image", URL: "https://example.com/a.png"}, seen[0])
	mu.Unlock()

	stream, err := pg.PrintPDF(ctx)
	require.NoError(t, err)
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, doc, got)

	methods := d.received()
	assert.Contains(t, methods, "Page.navigate")
	assert.Contains(t, methods, "IO.read")
	assert.Contains(t, methods, "IO.close")
}

func TestNewPageHonorsCallerDeadline(t *testing.T) {
	d := newDevtoolsServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := New(d.wsURL(), logger.NewDefault()).Connect(ctx)
	require.NoError(t, err)
	defer session.Close()

	expired, expire := context.WithCancel(ctx)
	expire()
	_, err = session.NewPage(expired)
	assert.ErrorIs(t, err, context.Canceled)
}
