package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"pagepress/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// The key is used as the Drive file name; the recorded path is the
// Drive file ID returned by the upload.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

// Create starts a streaming upload. Bytes written are piped into the
// Drive media upload running on its own goroutine.
func (c *Client) Create(ctx context.Context, key, contentType string) (ports.ObjectWriter, error) {
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}

	file := &drive.File{Name: key, MimeType: contentType}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	pr, pw := io.Pipe()
	uploadCtx, cancel := context.WithCancel(ctx)

	w := &uploadWriter{
		client: c,
		pw:     pw,
		cancel: cancel,
		result: make(chan uploadResult, 1),
	}

	call := c.srv.Files.Create(file).
		SupportsAllDrives(true).
		Fields("id").
		Context(uploadCtx)
	if contentType != "" {
		call = call.Media(pr, googleapi.ContentType(contentType))
	} else {
		call = call.Media(pr)
	}

	go func() {
		created, err := call.Do()
		// Unblock any writer still waiting on the pipe.
		_ = pr.CloseWithError(errUploadFinished(err))
		res := uploadResult{err: err}
		if created != nil {
			res.id = created.Id
		}
		w.result <- res
	}()

	return w, nil
}

func (c *Client) Open(ctx context.Context, path string) (io.ReadCloser, ports.ObjectInfo, error) {
	resp, err := c.srv.Files.Get(path).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s", ports.ErrObjectNotFound, path)
		}
		return nil, ports.ObjectInfo{}, err
	}

	return resp.Body, ports.ObjectInfo{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.srv.Files.Delete(path).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && isNotFound(err) {
		return fmt.Errorf("%w: %s", ports.ErrObjectNotFound, path)
	}
	return err
}

type uploadResult struct {
	id  string
	err error
}

type uploadWriter struct {
	client   *Client
	pw       *io.PipeWriter
	cancel   context.CancelFunc
	result   chan uploadResult
	finished bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *uploadWriter) Commit() (string, error) {
	if w.finished {
		return "", errors.New("object writer already finished")
	}
	w.finished = true
	defer w.cancel()

	_ = w.pw.Close()
	res := <-w.result
	if res.err != nil {
		return "", fmt.Errorf("gdrive upload failed: %w", res.err)
	}
	return res.id, nil
}

func (w *uploadWriter) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true

	_ = w.pw.CloseWithError(errAborted)
	w.cancel()
	res := <-w.result
	if res.err == nil && res.id != "" {
		// The upload raced the abort and completed; remove it.
		return w.client.Delete(context.Background(), res.id)
	}
	return nil
}

var errAborted = errors.New("upload aborted")

func errUploadFinished(err error) error {
	if err != nil {
		return err
	}
	return io.ErrClosedPipe
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}
