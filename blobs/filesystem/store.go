package filesystem

import (
	"car-management/blobs"
	"car-management/core"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
	baseURL  string
}

// NewStore creates a filesystem blob store rooted at basePath whose URLs
// live under baseURL + "/media/".
func NewStore(basePath, baseURL string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Annotate(err, "failed to create upload directory")
	}
	return &fsStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *fsStore) Upload(ctx context.Context, file core.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := blobs.NewID() + blobs.Extension(file)
	filePath := filepath.Join(s.basePath, name)
	log := logrus.WithFields(logrus.Fields{"file_path": filePath, "size": len(file.Data)})

	if err := os.WriteFile(filePath, file.Data, 0644); err != nil {
		log.WithError(err).Error("Failed to store blob")
		return "", errors.Annotatef(err, "failed to write %s", name)
	}

	log.Debug("Blob stored")
	return s.baseURL + "/media/" + name, nil
}

func (s *fsStore) Delete(ctx context.Context, blobID string) error {
	if !blobs.ValidID(blobID) {
		return core.InvalidArgumentf("invalid blob id %q", blobID)
	}
	matches, err := filepath.Glob(filepath.Join(s.basePath, blobID+".*"))
	if err != nil {
		return errors.Trace(err)
	}
	if len(matches) == 0 {
		return core.NotFoundf("blob %s not found", blobID)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return errors.Annotatef(err, "failed to remove %s", filepath.Base(m))
		}
	}
	return nil
}

func (s *fsStore) IDFromURL(url string) (string, error) {
	return blobs.PublicID(url)
}

// Handler serves single stored blobs by file name, e.g. GET /<id>.jpg.
// Directories are never listed.
func (s *fsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if _, err := blobs.PublicID(name); err != nil || strings.Contains(name, "/") {
			http.NotFound(w, r)
			return
		}
		f, err := os.Open(filepath.Join(s.basePath, name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	})
}
