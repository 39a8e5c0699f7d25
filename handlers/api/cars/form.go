package cars

import (
	"car-management/core"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// Limits bounds the images accepted by one request.
type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// carForm is a create or update request before validation. Nil fields
// were not sent.
type carForm struct {
	Title       *string
	Description *string
	TagsRaw     *string
	Tags        []string
	Files       []core.Upload
}

// tagsField accepts either "a, b" or ["a", "b"].
type tagsField struct {
	raw  *string
	list []string
}

func (t *tagsField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.raw = &s
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return core.InvalidArgumentf("tags must be a string or a list of strings")
	}
	if list == nil {
		list = []string{}
	}
	t.list = list
	return nil
}

const formOverhead = 1 << 20

func (l Limits) maxBody() int64 {
	files := int64(l.MaxFiles)
	if files < 1 {
		files = 1
	}
	return files*l.MaxFileBytes + formOverhead
}

// parseCarForm reads a multipart/form-data or JSON request body.
func parseCarForm(w http.ResponseWriter, r *http.Request, limits Limits) (*carForm, error) {
	if r.ContentLength > limits.maxBody() {
		return nil, &http.MaxBytesError{Limit: limits.maxBody()}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limits.maxBody())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r, limits)
	case "application/json", "":
		return parseJSON(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return formValues(r.PostForm), nil
	default:
		return nil, core.InvalidArgumentf("unsupported content type %q", mediaType)
	}
}

func parseJSON(r *http.Request) (*carForm, error) {
	var body struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Tags        *tagsField `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err == io.EOF {
			return &carForm{}, nil
		}
		if _, ok := err.(*http.MaxBytesError); ok {
			return nil, err
		}
		return nil, core.InvalidArgumentf("invalid request body")
	}
	form := &carForm{Title: body.Title, Description: body.Description}
	if body.Tags != nil {
		form.TagsRaw = body.Tags.raw
		form.Tags = body.Tags.list
	}
	return form, nil
}

func formValues(values map[string][]string) *carForm {
	first := func(key string) *string {
		if v, ok := values[key]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}
	form := &carForm{
		Title:       first("title"),
		Description: first("description"),
	}
	tags, ok := values["tags"]
	if !ok {
		tags, ok = values["tags[]"]
	}
	switch {
	case !ok:
	case len(tags) == 1:
		form.TagsRaw = &tags[0]
	default:
		form.Tags = tags
	}
	return form
}

func parseMultipart(r *http.Request, limits Limits) (*carForm, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}
	form := formValues(r.MultipartForm.Value)

	headers := r.MultipartForm.File["images"]
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		return nil, core.InvalidArgumentf("at most %d images are allowed", limits.MaxFiles)
	}
	for _, fh := range headers {
		if fh.Size > limits.MaxFileBytes {
			return nil, core.InvalidArgumentf("file %q exceeds the %d byte limit", fh.Filename, limits.MaxFileBytes)
		}
		upload, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		form.Files = append(form.Files, upload)
	}
	return form, nil
}

func readUpload(fh *multipart.FileHeader) (core.Upload, error) {
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return core.Upload{}, core.InvalidArgumentf("only image files are allowed")
	}
	f, err := fh.Open()
	if err != nil {
		return core.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return core.Upload{}, err
	}
	return core.Upload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}
