package cars

import (
	"bytes"
	"car-management/core"
	"car-management/handlers/auth"
	"car-management/middleware"
	carsvc "car-management/service/cars"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"
)

// Mock car service for testing
type mockCarService struct {
	created  *carsvc.CreateInput
	patched  *carsvc.Patch
	keyword  *string
	searched bool
	deleted  string
	err      error
}

func (m *mockCarService) car(id string) *core.Car {
	return &core.Car{ID: id, OwnerID: "user-1", Title: "Civic", Tags: []string{}, Images: []string{}}
}

func (m *mockCarService) Create(ctx context.Context, callerID string, in carsvc.CreateInput) (*core.Car, error) {
	m.created = &in
	if m.err != nil {
		return nil, m.err
	}
	return m.car("new"), nil
}

func (m *mockCarService) List(ctx context.Context, callerID string) ([]*core.Car, error) {
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

func (m *mockCarService) Search(ctx context.Context, callerID string, keyword *string) ([]*core.Car, error) {
	m.searched = true
	m.keyword = keyword
	if keyword == nil {
		return nil, core.InvalidArgumentf("keyword is required")
	}
	return []*core.Car{m.car("hit")}, nil
}

func (m *mockCarService) GetByID(ctx context.Context, callerID, id string) (*core.Car, error) {
	if id != "mine" {
		return nil, core.NotFoundf("car not found")
	}
	return m.car(id), nil
}

func (m *mockCarService) Update(ctx context.Context, callerID, id string, patch carsvc.Patch) (*core.Car, error) {
	m.patched = &patch
	if m.err != nil {
		return nil, m.err
	}
	return m.car(id), nil
}

func (m *mockCarService) Delete(ctx context.Context, callerID, id string) error {
	if id != "mine" {
		return core.NotFoundf("car not found")
	}
	m.deleted = id
	return nil
}

var testLimits = Limits{MaxFiles: 2, MaxFileBytes: 1024}

func newRouter(svc CarService) (http.Handler, string) {
	tokens := auth.NewTokens("access", "refresh", time.Hour, time.Hour)
	pair, _ := tokens.IssuePair("user-1")

	r := chi.NewRouter()
	r.Route("/api/cars", func(r chi.Router) {
		r.Use(middleware.AuthJWT(tokens))
		r.Post("/", HandleCreateCar(svc, testLimits))
		r.Get("/", HandleListCars(svc))
		r.Get("/search", HandleSearchCars(svc))
		r.Get("/{id}", HandleGetCar(svc))
		r.Put("/{id}", HandleUpdateCar(svc, testLimits))
		r.Delete("/{id}", HandleDeleteCar(svc))
	})
	return r, "Bearer " + pair.AccessToken
}

type part struct {
	field, filename, contentType string
	data                         []byte
}

func multipartBody(t *testing.T, fields map[string][]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, values := range fields {
		for _, v := range values {
			mw.WriteField(k, v)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() failed: %v", err)
		}
		w.Write(f.data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(router http.Handler, token, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return body["error"]
}

func TestCreate_Multipart(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)

	body, ct := multipartBody(t,
		map[string][]string{"title": {"Civic"}, "description": {"compact"}, "tags": {"a, b"}},
		part{"images", "one.jpg", "image/jpeg", []byte("1")},
		part{"images", "two.png", "image/png", []byte("22")},
	)
	rec := do(router, token, http.MethodPost, "/api/cars", body, ct)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	in := svc.created
	if in.Title != "Civic" || in.Description != "compact" || in.TagsRaw != "a, b" {
		t.Errorf("CreateInput mismatch: %+v", in)
	}
	if len(in.Files) != 2 || in.Files[0].Filename != "one.jpg" || in.Files[1].ContentType != "image/png" {
		t.Errorf("Files mismatch: %+v", in.Files)
	}
	if string(in.Files[1].Data) != "22" {
		t.Errorf("File data mismatch: %q", in.Files[1].Data)
	}
	var car core.Car
	json.NewDecoder(rec.Body).Decode(&car)
	if car.ID != "new" {
		t.Errorf("Response car mismatch: %+v", car)
	}
}

func TestCreate_TagListKeepsEntries(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)

	body, ct := multipartBody(t, map[string][]string{
		"title": {"Civic"}, "description": {"compact"}, "tags": {"sport, compact", "red"},
	})
	rec := do(router, token, http.MethodPost, "/api/cars", body, ct)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	in := svc.created
	if in.TagsRaw != "" {
		t.Errorf("TagsRaw should be empty for a tag list, got %q", in.TagsRaw)
	}
	if len(in.Tags) != 2 || in.Tags[0] != "sport, compact" || in.Tags[1] != "red" {
		t.Errorf("Tags mismatch: %#v", in.Tags)
	}
}

func TestCreate_RejectsFiles(t *testing.T) {
	cases := map[string][]part{
		"not an image": {{"images", "a.txt", "text/plain", []byte("x")}},
		"too many": {
			{"images", "1.jpg", "image/jpeg", []byte("1")},
			{"images", "2.jpg", "image/jpeg", []byte("2")},
			{"images", "3.jpg", "image/jpeg", []byte("3")},
		},
		"too large": {{"images", "big.jpg", "image/jpeg", make([]byte, 2048)}},
	}
	for name, files := range cases {
		svc := &mockCarService{}
		router, token := newRouter(svc)
		body, ct := multipartBody(t, map[string][]string{"title": {"t"}, "description": {"d"}}, files...)

		rec := do(router, token, http.MethodPost, "/api/cars", body, ct)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status code mismatch: got %d, want %d", name, rec.Code, http.StatusBadRequest)
		}
		if svc.created != nil {
			t.Errorf("%s: service called despite invalid files", name)
		}
	}
}

func TestCreate_BodyTooLarge(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)
	body, ct := multipartBody(t, map[string][]string{"title": {strings.Repeat("x", 4<<20)}})

	rec := do(router, token, http.MethodPost, "/api/cars", body, ct)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestCreate_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
		msg  string
	}{
		{core.InvalidArgumentf("title is required"), http.StatusBadRequest, "title is required"},
		{core.AsUploadError(errors.New("cloud down"), "upload"), http.StatusBadGateway, "Failed to upload images"},
		{core.AsStoreError(errors.New("db down"), "insert"), http.StatusInternalServerError, "Something went wrong!"},
	}
	for _, c := range cases {
		router, token := newRouter(&mockCarService{err: c.err})
		rec := do(router, token, http.MethodPost, "/api/cars", bytes.NewBufferString(`{"title":"t","description":"d"}`), "application/json")
		if rec.Code != c.want {
			t.Errorf("%v: status code mismatch: got %d, want %d", c.err, rec.Code, c.want)
		}
		if got := errorMessage(t, rec); got != c.msg {
			t.Errorf("%v: error message %q, want %q", c.err, got, c.msg)
		}
	}
}

func TestRequiresToken(t *testing.T) {
	router, _ := newRouter(&mockCarService{})
	rec := do(router, "", http.MethodGet, "/api/cars", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	router, token := newRouter(&mockCarService{})
	rec := do(router, token, http.MethodGet, "/api/cars", nil, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Body = %s, want []", got)
	}
}

func TestSearch_Keyword(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)

	rec := do(router, token, http.MethodGet, "/api/cars/search?keyword=red+civic", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.keyword == nil || *svc.keyword != "red civic" {
		t.Errorf("Keyword mismatch: %v", svc.keyword)
	}

	rec = do(router, token, http.MethodGet, "/api/cars/search?keyword=", nil, "")
	if rec.Code != http.StatusOK || svc.keyword == nil || *svc.keyword != "" {
		t.Errorf("Empty keyword not passed through: %d %v", rec.Code, svc.keyword)
	}

	rec = do(router, token, http.MethodGet, "/api/cars/search", nil, "")
	if rec.Code != http.StatusBadRequest || svc.keyword != nil {
		t.Errorf("Missing keyword: status %d, keyword %v", rec.Code, svc.keyword)
	}
}

func TestGet(t *testing.T) {
	router, token := newRouter(&mockCarService{})

	if rec := do(router, token, http.MethodGet, "/api/cars/mine", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	rec := do(router, token, http.MethodGet, "/api/cars/theirs", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := errorMessage(t, rec); got != "car not found" {
		t.Errorf("Error message %q", got)
	}
}

func TestUpdate_JSON(t *testing.T) {
	cases := []struct {
		body     string
		wantRaw  *string
		wantTags []string
	}{
		{`{"title":"New","tags":"a, b ,c"}`, strPtr("a, b ,c"), nil},
		{`{"title":"New","tags":["a","b"]}`, nil, []string{"a", "b"}},
		{`{"title":"New"}`, nil, nil},
	}
	for _, c := range cases {
		svc := &mockCarService{}
		router, token := newRouter(svc)

		rec := do(router, token, http.MethodPut, "/api/cars/mine", bytes.NewBufferString(c.body), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status code mismatch: got %d, want %d", c.body, rec.Code, http.StatusOK)
		}
		p := svc.patched
		if p.Title == nil || *p.Title != "New" || p.Description != nil {
			t.Errorf("%s: patch fields %+v", c.body, p)
		}
		if (c.wantRaw == nil) != (p.TagsRaw == nil) || (c.wantRaw != nil && *c.wantRaw != *p.TagsRaw) {
			t.Errorf("%s: TagsRaw = %v, want %v", c.body, p.TagsRaw, c.wantRaw)
		}
		if strings.Join(p.Tags, ",") != strings.Join(c.wantTags, ",") {
			t.Errorf("%s: Tags = %v, want %v", c.body, p.Tags, c.wantTags)
		}
	}
}

func TestUpdate_MultipartReplacesImages(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)
	body, ct := multipartBody(t,
		map[string][]string{"tags": {"x", "y"}},
		part{"images", "f1.jpg", "image/jpeg", []byte("1")},
	)

	rec := do(router, token, http.MethodPut, "/api/cars/mine", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	p := svc.patched
	if p.Title != nil || p.TagsRaw != nil || strings.Join(p.Tags, ",") != "x,y" {
		t.Errorf("Patch mismatch: %+v", p)
	}
	if len(p.Files) != 1 || p.Files[0].Filename != "f1.jpg" {
		t.Errorf("Files mismatch: %+v", p.Files)
	}
}

func TestUpdate_NotFoundBeforeBadBody(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)

	rec := do(router, token, http.MethodPut, "/api/cars/theirs", bytes.NewBufferString(`{"tags":42}`), "application/json")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec = do(router, token, http.MethodPut, "/api/cars/mine", bytes.NewBufferString(`{"tags":42}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDelete(t *testing.T) {
	svc := &mockCarService{}
	router, token := newRouter(svc)

	rec := do(router, token, http.MethodDelete, "/api/cars/mine", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["message"] != "Car deleted successfully" || svc.deleted != "mine" {
		t.Errorf("Delete response %v, deleted %q", body, svc.deleted)
	}

	if rec := do(router, token, http.MethodDelete, "/api/cars/theirs", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func strPtr(s string) *string { return &s }
