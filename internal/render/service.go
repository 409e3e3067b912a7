// Package render turns a URL into a PDF on a remote headless browser and
// streams the document to storage and to the caller at the same time.
package render

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pagepress/internal/metrics"
	"pagepress/internal/models"
	"pagepress/internal/pkg/errors"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
)

const (
	ContentType      = "application/pdf"
	DownloadFilename = "output.pdf"
)

// RecordStore persists the audit record of a completed render.
type RecordStore interface {
	Create(ctx context.Context, ownerID, sourceURL, storagePath string) (*models.RenderRecord, error)
}

// OrphanQueue receives storage paths that may have no record pointing at them.
type OrphanQueue interface {
	Push(ctx context.Context, path string) error
}

// ResponseSink is the live destination of a render.
type ResponseSink interface {
	io.Writer
	// Begin fixes the content headers. It is called once, before the
	// first Write.
	Begin(contentType, filename string)
	// Started reports whether any bytes have been sent to the client.
	Started() bool
}

// Options are the render timing and buffering parameters.
type Options struct {
	NavigationTimeout time.Duration
	SettleTimeout     time.Duration
	SettleInterval    time.Duration
	JobTimeout        time.Duration
	ChunkSize         int
}

func DefaultOptions() Options {
	return Options{
		NavigationTimeout: 60 * time.Second,
		SettleTimeout:     30 * time.Second,
		SettleInterval:    200 * time.Millisecond,
		JobTimeout:        3 * time.Minute,
		ChunkSize:         64 << 10,
	}
}

type Deps struct {
	Backend ports.RenderBackend
	Storage ports.StorageProvider
	Records RecordStore
	// Orphans is optional.
	Orphans OrphanQueue
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Tracer defaults to the global provider's "pagepress/render" tracer.
	Tracer  trace.Tracer
	Log     *logger.Logger
	Options Options
	Now     func() time.Time
}

// Service runs render jobs. It holds no per-request state.
type Service struct {
	backend ports.RenderBackend
	storage ports.StorageProvider
	records RecordStore
	orphans OrphanQueue
	metrics *metrics.Metrics
	tracer  trace.Tracer
	log     *logger.Logger
	opts    Options
	now     func() time.Time
}

func NewService(d Deps) *Service {
	opts := d.Options
	def := DefaultOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = def.SettleTimeout
	}
	if opts.SettleInterval <= 0 {
		opts.SettleInterval = def.SettleInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = def.JobTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}

	s := &Service{
		backend: d.Backend,
		storage: d.Storage,
		records: d.Records,
		orphans: d.Orphans,
		metrics: d.Metrics,
		tracer:  d.Tracer,
		log:     d.Log,
		opts:    opts,
		now:     d.Now,
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("pagepress/render")
	}
	if s.log == nil {
		s.log = logger.NewDefault()
	}
	s.log = s.log.WithComponent("render")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Result describes a finished job, successful or not.
type Result struct {
	Job                *Job
	Record             *models.RenderRecord
	StoragePath        string
	Bytes              int64
	Settle             SettleResult
	ClientDisconnected bool
}

// Generate renders rawURL for principalID and streams the PDF to resp
// and to storage. The returned error carries an errors.Code naming the
// failure; the Result is always non-nil.
//
// Client cancellation of ctx does not stop the job: once validated, the
// job runs on a detached context bounded by the job timeout so the
// stored copy and the remote teardown complete.
func (s *Service) Generate(ctx context.Context, principalID, rawURL string, resp ResponseSink) (*Result, error) {
	job := NewJob(principalID, s.now())
	res := &Result{Job: job}

	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := s.log.FromContext(ctx)

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RendersInFlight.Inc()
		defer s.metrics.RendersInFlight.Dec()
	}

	err := s.run(ctx, job, rawURL, resp, res)
	if err != nil {
		_ = job.Fail(errors.GetCode(err))
	}
	s.observe(log, res, err, time.Since(start))
	return res, err
}

func (s *Service) run(ctx context.Context, job *Job, rawURL string, resp ResponseSink, res *Result) error {
	target, err := ValidateTarget(rawURL)
	if err != nil {
		return err
	}
	job.TargetURL = target.String()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.JobTimeout)
	defer cancel()

	jobCtx, span := s.tracer.Start(jobCtx, "render.job", trace.WithAttributes(
		attribute.String("render.job_id", job.ID),
		attribute.String("render.url", job.TargetURL),
	))
	defer span.End()

	log := s.log.FromContext(jobCtx)
	log.Info("render started", "url", job.TargetURL)

	err = s.execute(jobCtx, log, job, resp, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.GetCode(err)))
	}
	return err
}

func (s *Service) execute(ctx context.Context, log *logger.Logger, job *Job, resp ResponseSink, res *Result) error {
	if err := job.Advance(StateRendering); err != nil {
		return errors.Wrap(err, "render.advance", "render job state error")
	}

	session, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "session", session.Close)

	page, err := session.NewPage(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderBackend, "render.new_page", "failed to open page")
	}
	defer closeQuietly(log, "page", page.Close)

	pending := NewPendingImageSet()
	page.OnResource(pending.Observe)

	if err := s.navigate(ctx, page, job.TargetURL); err != nil {
		return err
	}

	settle, err := s.settle(ctx, pending)
	res.Settle = settle
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderBackend, "render.settle", "render job timed out while waiting for images")
	}
	if !settle.Settled {
		log.Warn("image settle deadline reached, printing anyway",
			"pending_images", settle.Remaining,
			"waited_ms", settle.Waited.Milliseconds(),
		)
		if s.metrics != nil {
			s.metrics.SettleTimeouts.Inc()
		}
	}

	artifact, err := page.PrintPDF(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderBackend, "render.print", "failed to print page")
	}
	defer closeQuietly(log, "document stream", artifact.Close)

	if err := job.Advance(StateStreaming); err != nil {
		return errors.Wrap(err, "render.advance", "render job state error")
	}

	if err := s.stream(ctx, log, job, artifact, resp, res); err != nil {
		return err
	}

	if err := job.Advance(StateRecording); err != nil {
		return errors.Wrap(err, "render.advance", "render job state error")
	}

	record, err := s.record(ctx, job, res.StoragePath)
	if err != nil {
		s.log.LogError(ctx, "audit record failed after document was delivered", err,
			"storage_path", res.StoragePath,
		)
		s.queueOrphan(ctx, log, res.StoragePath)
		return errors.WrapWithCode(err, errors.CodeAuditWrite, "render.record", "failed to record render")
	}
	res.Record = record

	return job.Advance(StateDone)
}

func (s *Service) connect(ctx context.Context) (ports.RenderSession, error) {
	ctx, span := s.tracer.Start(ctx, "render.connect")
	defer span.End()

	session, err := s.backend.Connect(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errors.WrapWithCode(err, errors.CodeBackendUnavailable, "render.connect", "render backend unavailable")
	}
	return session, nil
}

func (s *Service) navigate(ctx context.Context, page ports.RenderPage, url string) error {
	ctx, span := s.tracer.Start(ctx, "render.navigate")
	defer span.End()

	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	err := page.Navigate(navCtx, url, ports.WaitDOMContentLoaded)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	// Only the navigation's own deadline is a navigation timeout; the job
	// deadline expiring underneath it is reported as a backend failure.
	if ctx.Err() != nil {
		return errors.WrapWithCode(err, errors.CodeRenderBackend, "render.navigate", "render job timed out during navigation")
	}
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return errors.WrapWithCode(err, errors.CodeNavigationTimeout, "render.navigate", "navigation timed out").
			WithField("timeout", s.opts.NavigationTimeout.String())
	}
	return errors.WrapWithCode(err, errors.CodeRenderBackend, "render.navigate", "navigation failed")
}

func (s *Service) settle(ctx context.Context, pending *PendingImageSet) (SettleResult, error) {
	ctx, span := s.tracer.Start(ctx, "render.settle")
	defer span.End()

	r, err := WaitForSettle(ctx, pending, s.opts.SettleInterval, s.opts.SettleTimeout)
	span.SetAttributes(
		attribute.Bool("render.images_settled", r.Settled),
		attribute.Int("render.images_pending", r.Remaining),
	)
	return r, err
}

// stream relays the document to storage and to the response. Storage
// failures end the job; response failures are logged and the stored
// copy is completed anyway.
func (s *Service) stream(ctx context.Context, log *logger.Logger, job *Job, artifact io.Reader, resp ResponseSink, res *Result) error {
	ctx, span := s.tracer.Start(ctx, "render.stream")
	defer span.End()

	key := StorageKey(job.PrincipalID, job.StartedAt)
	obj, err := s.storage.Create(ctx, key, ContentType)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeStorageWrite, "render.stream", "failed to open storage object").
			WithField("storage_key", key)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if abortErr := obj.Abort(); abortErr != nil {
			log.WithError(abortErr).Warn("failed to discard partial object", "storage_key", key)
			s.queueOrphan(ctx, log, key)
		}
	}()

	resp.Begin(ContentType, DownloadFilename)

	const storageSink, responseSink = 0, 1
	chunks := Tee(artifact, s.opts.ChunkSize,
		Sink{Name: "storage", W: obj},
		Sink{Name: "response", W: resp},
	)
	for chunk := range chunks {
		if chunk.ReadErr != nil {
			return errors.WrapWithCode(chunk.ReadErr, errors.CodeRenderBackend, "render.stream", "failed to read document stream")
		}
		res.Bytes += int64(chunk.Size)
		if s.metrics != nil {
			s.metrics.BytesStreamed.Add(float64(chunk.Size))
		}

		if chunk.Failed(storageSink) {
			return errors.WrapWithCode(chunk.SinkErrs[storageSink], errors.CodeStorageWrite, "render.stream", "failed to write document to storage").
				WithField("storage_key", key)
		}
		if chunk.Failed(responseSink) {
			res.ClientDisconnected = true
			log.Warn("client disconnected, continuing to store document",
				"code", string(errors.CodeClientDisconnected),
				"chunk", chunk.Index,
				"error", chunk.SinkErrs[responseSink].Error(),
			)
			if s.metrics != nil {
				s.metrics.ClientDisconnects.Inc()
			}
		}
	}

	finished = true
	path, err := obj.Commit()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeStorageWrite, "render.stream", "failed to finalize storage object").
			WithField("storage_key", key)
	}
	res.StoragePath = path
	span.SetAttributes(attribute.Int64("render.bytes", res.Bytes))
	return nil
}

func (s *Service) record(ctx context.Context, job *Job, path string) (*models.RenderRecord, error) {
	ctx, span := s.tracer.Start(ctx, "render.record")
	defer span.End()

	rec, err := s.records.Create(ctx, job.PrincipalID, job.TargetURL, path)
	if err != nil {
		span.RecordError(err)
	}
	return rec, err
}

func (s *Service) queueOrphan(ctx context.Context, log *logger.Logger, path string) {
	if s.orphans == nil || path == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.orphans.Push(pushCtx, path); err != nil {
		s.log.LogError(ctx, "failed to queue orphaned object", err, "storage_path", path)
		return
	}
	if s.metrics != nil {
		s.metrics.OrphansQueued.Inc()
	}
}

func (s *Service) observe(log *logger.Logger, res *Result, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(errors.GetCode(err))
	}
	if s.metrics != nil {
		s.metrics.RendersTotal.WithLabelValues(outcome).Inc()
		s.metrics.RenderDuration.Observe(took.Seconds())
	}

	if err != nil {
		if errors.IsInvalidInput(err) {
			return
		}
		log.Error("render failed",
			"code", outcome,
			"failed_in", string(res.Job.FailedIn),
			"bytes", res.Bytes,
			"duration_ms", took.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	log.Info("render completed",
		"storage_path", res.StoragePath,
		"bytes", res.Bytes,
		"images_settled", res.Settle.Settled,
		"client_disconnected", res.ClientDisconnected,
		"duration_ms", took.Milliseconds(),
	)
}

func closeQuietly(log *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.WithError(err).Warn("render cleanup failed", "resource", what)
	}
}
