package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pagepress/internal/models"
	"pagepress/internal/pkg/logger"
)

type stubRecords struct {
	recs []models.RenderRecord
	err  error
}

func (s stubRecords) AllByOwner(ctx context.Context, ownerID string) ([]models.RenderRecord, error) {
	return s.recs, s.err
}

func TestRenderHistoryXLSX(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(stubRecords{recs: []models.RenderRecord{
		{ID: "r2", SourceURL: "https://b.test", CreatedAt: created.Add(time.Hour)},
		{ID: "r1", SourceURL: "https://a.test", CreatedAt: created},
	}}, "https://pagepress.example.com/", logger.NewDefault())

	b, err := svc.RenderHistoryXLSX(context.Background(), "usr-1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "URL", "Download"}, rows[0])
	assert.Equal(t, "https://b.test", rows[1][1])
	assert.Equal(t, "https://pagepress.example.com/api/renders/r2/content", rows[1][2])
	assert.Equal(t, "https://a.test", rows[2][1])

	ok, target, err := f.GetCellHyperLink(sheetName, "C3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://pagepress.example.com/api/renders/r1/content", target)
}

func TestRenderHistoryXLSXEmpty(t *testing.T) {
	b, err := NewService(stubRecords{}, "", nil).RenderHistoryXLSX(context.Background(), "usr-1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRenderHistoryXLSXQueryError(t *testing.T) {
	_, err := NewService(stubRecords{err: errors.New("db down")}, "", nil).RenderHistoryXLSX(context.Background(), "usr-1")
	assert.ErrorContains(t, err, "db down")
}
