package cars

import (
	"car-management/core"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func (s *Service) validateFiles(files []core.Upload) error {
	if s.opts.MaxFiles > 0 && len(files) > s.opts.MaxFiles {
		return core.InvalidArgumentf("at most %d images are allowed, got %d", s.opts.MaxFiles, len(files))
	}
	for i, f := range files {
		name := fileLabel(i, f)
		if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
			return core.InvalidArgumentf("only image files are allowed, %s is %q", name, f.ContentType)
		}
		if len(f.Data) == 0 {
			return core.InvalidArgumentf("%s is empty", name)
		}
		if int64(len(f.Data)) > s.opts.MaxFileBytes {
			return core.InvalidArgumentf("%s exceeds the %d byte limit", name, s.opts.MaxFileBytes)
		}
	}
	return nil
}

func fileLabel(i int, f core.Upload) string {
	if f.Filename != "" {
		return fmt.Sprintf("file %q", f.Filename)
	}
	return fmt.Sprintf("file #%d", i+1)
}

// uploadAll stores every file and returns their URLs in input order,
// whatever order the uploads finish in. On failure the files that did
// upload are cleaned up and the first error is returned.
func (s *Service) uploadAll(ctx context.Context, callerID string, files []core.Upload) ([]string, error) {
	urls := make([]string, len(files))
	if len(files) == 0 {
		return urls, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			url, err := s.blobs.Upload(gctx, f)
			if err != nil {
				return core.AsUploadError(err, "failed to upload "+fileLabel(i, f))
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		stored := make([]string, 0, len(urls))
		for _, u := range urls {
			if u != "" {
				stored = append(stored, u)
			}
		}
		logrus.WithFields(logrus.Fields{"user_id": callerID, "uploaded": len(stored), "files": len(files)}).
			WithError(err).Warn("Image upload failed")
		s.cleanup(callerID, "", stored, "upload failed")
		return nil, err
	}
	return urls, nil
}

// cleanup deletes the blobs behind urls in the background, one task per
// blob. Results are collected and logged; nothing is returned to the
// caller.
func (s *Service) cleanup(callerID, carID string, urls []string, reason string) {
	if len(urls) == 0 {
		return
	}
	log := logrus.WithFields(logrus.Fields{"user_id": callerID, "car_id": carID, "reason": reason})

	s.cleanups.Add(1)
	go func() {
		defer s.cleanups.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
		defer cancel()

		results := make([]error, len(urls))
		var wg sync.WaitGroup
		for i, url := range urls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = s.deleteBlob(ctx, url)
			}()
		}
		wg.Wait()

		failed := 0
		for i, err := range results {
			if err != nil {
				failed++
				log.WithField("url", urls[i]).WithError(err).Warn("Failed to delete image")
			}
		}
		log.WithFields(logrus.Fields{"deleted": len(urls) - failed, "failed": failed}).Debug("Image cleanup finished")
	}()
}

func (s *Service) deleteBlob(ctx context.Context, url string) error {
	id, err := s.blobs.IDFromURL(url)
	if err != nil {
		return err
	}
	return s.blobs.Delete(ctx, id)
}
