package ports

import (
	"context"
	"io"
)

// WaitUntil names the page lifecycle point Navigate waits for.
type WaitUntil string

const (
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
)

// ResourcePhase is the lifecycle step a ResourceEvent reports.
type ResourcePhase int

const (
	ResourceRequested ResourcePhase = iota
	ResourceResponded
	ResourceFailed
)

// ResourceEvent is a network lifecycle event observed on a page.
type ResourceEvent struct {
	ID    string
	Phase ResourcePhase
	// Type is the browser's resource type, e.g. "Image" or "Script".
	Type string
	URL  string
}

// RenderBackend opens sessions on a remote headless browser.
type RenderBackend interface {
	Connect(ctx context.Context) (RenderSession, error)
}

// RenderSession is one connection to the remote browser.
type RenderSession interface {
	NewPage(ctx context.Context) (RenderPage, error)
	Close() error
}

// RenderPage is an isolated page context inside a session.
type RenderPage interface {
	// OnResource registers fn for network events. fn must not block.
	OnResource(fn func(ResourceEvent))
	Navigate(ctx context.Context, url string, until WaitUntil) error
	// PrintPDF returns the document as a byte stream read in chunks
	// from the browser.
	PrintPDF(ctx context.Context) (io.ReadCloser, error)
	Close() error
}
