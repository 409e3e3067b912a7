package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepress/internal/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "valid", body: `{"url":"https://example.com/a?b=c"}`, want: "https://example.com/a?b=c"},
		{name: "extra field", body: `{"url":"https://example.com","landscape":true}`, wantErr: true},
		{name: "missing url", body: `{}`, wantErr: true},
		{name: "url not a string", body: `{"url":42}`, wantErr: true},
		{name: "empty url", body: `{"url":""}`, wantErr: true},
		{name: "not a uri", body: `{"url":"not-a-url"}`, wantErr: true},
		{name: "array body", body: `["https://example.com"]`, wantErr: true},
		{name: "trailing data", body: `{"url":"https://example.com"}{}`, wantErr: true},
		{name: "malformed json", body: `{"url":`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.URL)
		})
	}
}

func TestParseRequestFieldErrors(t *testing.T) {
	_, err := ParseRequest([]byte(`{"url":"https://example.com","extra":1}`))
	require.Error(t, err)

	fields := errors.GetFields(err)
	require.Contains(t, fields, "fieldErrors")
	assert.NotEmpty(t, fields["fieldErrors"])
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "https://example.com"},
		{raw: "http://localhost:3000/report"},
		{raw: "HTTPS://Example.com/path"},
		{raw: "ftp://example.com/file", wantErr: true},
		{raw: "file:///etc/passwd", wantErr: true},
		{raw: "/relative/path", wantErr: true},
		{raw: "https://", wantErr: true},
		{raw: "mailto:someone@example.com", wantErr: true},
		{raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := ValidateTarget(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.Host)
		})
	}
}
