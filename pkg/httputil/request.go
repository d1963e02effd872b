package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ErrUnsupportedContentType is returned by ParseFields for bodies that are
// neither JSON nor form encoded
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Fields holds flat string inputs read from a JSON object or a form body
type Fields map[string]string

// Get returns the trimmed value for key
func (f Fields) Get(key string) string {
	return strings.TrimSpace(f[key])
}

// Raw returns the value for key untouched (passwords, secrets)
func (f Fields) Raw(key string) string {
	return f[key]
}

// ParseFields reads a flat set of string inputs from either a JSON object or
// an application/x-www-form-urlencoded (or multipart) body. Non-string JSON
// values are ignored, so they read as missing.
func ParseFields(r *http.Request) (Fields, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType := "application/json"
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		var raw map[string]interface{}
		if err := ParseJSON(r, &raw); err != nil {
			return nil, err
		}
		fields := make(Fields, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		return fields, nil

	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		fields := make(Fields, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
}

// ParseFieldsOrError reads fields and writes 400 on failure
func ParseFieldsOrError(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	fields, err := ParseFields(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return nil, false
	}
	return fields, true
}
