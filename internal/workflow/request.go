package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Request is a create request as received by the API: form fields and uploaded files.
type Request struct {
	Fields map[string]string
	Files  map[string][]File
}

// File is an uploaded file. Open may be called more than once.
type File struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// Value returns the trimmed form field name.
func (r *Request) Value(name string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[name])
}

// Has reports whether the form field name is present and not blank.
func (r *Request) Has(name string) bool {
	return r.Value(name) != ""
}

// FileList returns the files uploaded under name.
func (r *Request) FileList(name string) []File {
	if r == nil || r.Files == nil {
		return nil
	}
	return r.Files[name]
}

// Attachment is a set of uploaded files to save before the task is created.
// The saved paths are written into the task input under InputKey.
type Attachment struct {
	InputKey string
	Files    []File
	// Names are the file names to save under, parallel to Files.
	Names []string
	// Multiple stores a list of paths rather than a single path.
	Multiple bool
}

// Accepted is the result of a successful validation.
type Accepted struct {
	Input       map[string]any
	Attachments []Attachment
}

// ValidationError reports a create request that cannot become a task.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// requireFields returns a ValidationError naming every blank field.
func requireFields(req *Request, names ...string) error {
	var missing []string
	for _, n := range names {
		if !req.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return invalid(missing[0], "%s is required", strings.Join(missing, ", "))
}

// optionalInt parses an integer field. Blank yields def.
func optionalInt(req *Request, name string, def int) (int, error) {
	v := req.Value(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid(name, "%s must be an integer", name)
	}
	return i, nil
}

// lenientInt parses an integer field, falling back to def on any failure.
func lenientInt(req *Request, name string, def int) int {
	i, err := strconv.Atoi(req.Value(name))
	if err != nil {
		return def
	}
	return i
}

// jsonStrings decodes a JSON array of strings from a form field.
// Blank or malformed input yields an empty list.
func jsonStrings(req *Request, name string) []string {
	out := []string{}
	v := req.Value(name)
	if v == "" {
		return out
	}
	var items []any
	if err := json.Unmarshal([]byte(v), &items); err != nil {
		return out
	}
	for _, item := range items {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case nil:
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// uploadName picks the saved file name for an upload: base plus the upload's
// own image extension, or .jpg when it has none.
func uploadName(base string, f File) string {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !imageExts[ext] {
		ext = ".jpg"
	}
	return base + ext
}

func singleFile(key string, f File) Attachment {
	return Attachment{InputKey: key, Files: []File{f}, Names: []string{uploadName("image", f)}}
}

func indexedFiles(key string, files []File) Attachment {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = uploadName(fmt.Sprintf("image_%d", i), f)
	}
	return Attachment{InputKey: key, Files: files, Names: names, Multiple: true}
}
