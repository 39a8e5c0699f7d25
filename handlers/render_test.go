package handlers

import (
	"car-management/core"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/juju/errors"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.InvalidArgumentf("x"), http.StatusBadRequest},
		{core.Unauthorizedf("x"), http.StatusUnauthorized},
		{core.NotFoundf("x"), http.StatusNotFound},
		{core.AlreadyExistsf("x"), http.StatusConflict},
		{core.AsUploadError(errors.New("x"), "upload"), http.StatusBadGateway},
		{core.AsQueryError(errors.New("x"), "query"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusOf(c.err); got != c.want {
			t.Errorf("StatusOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestRenderError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cars", nil)
	RenderError(rec, req, core.AsStoreError(errors.New("dial tcp 10.0.0.1:27017: refused"), "insert"))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] != "Something went wrong!" {
		t.Errorf("Internal error leaked: %q", body["error"])
	}
}
