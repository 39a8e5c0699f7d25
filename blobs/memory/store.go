package memory

import (
	"bytes"
	"car-management/blobs"
	"car-management/core"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type blob struct {
	contentType string
	data        []byte
}

// memStore keeps blobs in process memory and serves them over HTTP.
type memStore struct {
	mu      sync.RWMutex
	blobs   map[string]blob
	baseURL string
}

// NewStore creates a new in-memory blob store whose URLs live under
// baseURL + "/media/".
func NewStore(baseURL string) *memStore {
	return &memStore{
		blobs:   make(map[string]blob),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *memStore) Upload(ctx context.Context, file core.Upload) (string, error) {
	id := blobs.NewID()
	name := id + blobs.Extension(file)

	s.mu.Lock()
	s.blobs[id] = blob{contentType: file.ContentType, data: append([]byte(nil), file.Data...)}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"blob_id": id, "size": len(file.Data)}).Debug("Blob stored")
	return s.baseURL + "/media/" + name, nil
}

func (s *memStore) Delete(ctx context.Context, blobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[blobID]; !ok {
		return core.NotFoundf("blob %s not found", blobID)
	}
	delete(s.blobs, blobID)
	return nil
}

func (s *memStore) IDFromURL(url string) (string, error) {
	return blobs.PublicID(url)
}

// Len reports how many blobs are stored.
func (s *memStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Handler serves stored blobs by file name, e.g. GET /<id>.jpg.
func (s *memStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := blobs.PublicID(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.mu.RLock()
		b, ok := s.blobs[id]
		s.mu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", b.contentType)
		http.ServeContent(w, r, id, time.Time{}, bytes.NewReader(b.data))
	})
}
