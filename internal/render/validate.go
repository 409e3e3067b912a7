package render

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pagepress/internal/pkg/errors"
)

const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "url": {"type": "string", "format": "uri", "minLength": 1, "maxLength": 2048}
  },
  "required": ["url"],
  "additionalProperties": false
}`

var compiledRequestSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("render-request.json", strings.NewReader(requestSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("render-request.json")
}

// Request is the body of a render request.
type Request struct {
	URL string `json:"url"`
}

// ParseRequest validates a raw JSON body strictly: exactly one "url"
// string and nothing else.
func ParseRequest(body []byte) (Request, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return Request{}, errors.InvalidInput("request body must be a JSON object").
			WithField("reason", err.Error())
	}
	if dec.More() {
		return Request{}, errors.InvalidInput("request body must contain a single JSON object")
	}

	if err := compiledRequestSchema.Validate(v); err != nil {
		e := errors.InvalidInput("request body does not match schema")
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			e = e.WithField("fieldErrors", fieldErrors(verr))
		}
		return Request{}, e
	}

	obj := v.(map[string]any)
	return Request{URL: obj["url"].(string)}, nil
}

// fieldErrors flattens the schema error tree into "location: message" lines.
func fieldErrors(verr *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}

// ValidateTarget checks that raw is an absolute http(s) URL with a host.
func ValidateTarget(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || trimmed == "" {
		return nil, errors.InvalidField("url", "url must be an absolute URL").WithField("value", raw)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.InvalidField("url", "url must be an absolute URL").WithField("value", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, errors.InvalidField("url", "url scheme must be http or https").WithField("value", raw)
	}
	return u, nil
}
