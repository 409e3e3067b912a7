// Package handlers implements the JSON API endpoints.
package handlers

import (
	"context"

	"github.com/redis/go-redis/v9"

	"pagepress/internal/models"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
	"pagepress/internal/render"
)

const defaultMaxBodyBytes = 16 << 10

// Renderer runs one render job.
type Renderer interface {
	Generate(ctx context.Context, principalID, rawURL string, resp render.ResponseSink) (*render.Result, error)
}

// RecordReader reads a principal's render records.
type RecordReader interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.RenderRecord, error)
	GetForOwner(ctx context.Context, ownerID, id string) (*models.RenderRecord, error)
}

// Exporter builds the history workbook.
type Exporter interface {
	RenderHistoryXLSX(ctx context.Context, ownerID string) ([]byte, error)
}

// Pinger is a dependency the deep health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger matches *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Deps struct {
	DB       Pinger
	RDB      RedisPinger
	SP       ports.StorageProvider
	Renderer Renderer
	Records  RecordReader
	Exporter Exporter
	Log      *logger.Logger
	// MaxBodyBytes caps render request bodies.
	MaxBodyBytes int64
}

type Handler struct {
	db       Pinger
	rdb      RedisPinger
	sp       ports.StorageProvider
	renderer Renderer
	records  RecordReader
	exporter Exporter
	log      *logger.Logger
	maxBody  int64
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		db:       d.DB,
		rdb:      d.RDB,
		sp:       d.SP,
		renderer: d.Renderer,
		records:  d.Records,
		exporter: d.Exporter,
		log:      log,
		maxBody:  maxBody,
	}
}
