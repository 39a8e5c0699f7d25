// Package cars implements the owner-scoped car operations: every read and
// write is filtered by the authenticated caller, and the lifecycle of the
// images a car references follows the car.
package cars

import (
	"car-management/core"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// MaxFiles and MaxFileBytes bound the images of one request.
	MaxFiles     int
	MaxFileBytes int64

	// UploadConcurrency is how many images of one request upload at once.
	UploadConcurrency int

	// BrowseAllOnEmptySearch makes a blank search keyword list the cars of
	// every owner instead of only the caller's.
	BrowseAllOnEmptySearch bool

	// CleanupTimeout bounds a background image cleanup.
	CleanupTimeout time.Duration

	Clock clock.Clock
}

func DefaultOptions() Options {
	return Options{
		MaxFiles:               10,
		MaxFileBytes:           5 << 20,
		UploadConcurrency:      4,
		BrowseAllOnEmptySearch: true,
		CleanupTimeout:         time.Minute,
		Clock:                  clock.WallClock,
	}
}

type (
	// CreateInput is the raw input of Create.
	CreateInput struct {
		Title       string
		Description string
		// TagsRaw is a comma separated list; it wins over Tags.
		TagsRaw string
		Tags    []string
		Files   []core.Upload
	}

	// Patch is the raw input of Update. Absent fields are nil; blank
	// fields are ignored.
	Patch struct {
		Title       *string
		Description *string
		// TagsRaw is a comma separated list; it wins over Tags.
		TagsRaw *string
		Tags    []string
		// Files, when non-empty, replace every image of the car.
		Files []core.Upload
	}
)

type Service struct {
	store core.CarStore
	blobs core.BlobStore
	opts  Options

	// cleanups tracks background image deletions.
	cleanups sync.WaitGroup
}

func NewService(store core.CarStore, blobs core.BlobStore, opts Options) *Service {
	def := DefaultOptions()
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = 1
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = def.MaxFileBytes
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = def.CleanupTimeout
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Service{store: store, blobs: blobs, opts: opts}
}

// Wait blocks until every background image cleanup has finished.
func (s *Service) Wait() {
	s.cleanups.Wait()
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return core.Unauthorizedf("no authenticated user")
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.opts.Clock.Now().UTC()
}

// Create uploads the files, then stores a new car owned by callerID whose
// images are the uploaded URLs in input order. Nothing is stored if any
// upload fails.
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*core.Car, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, core.InvalidArgumentf("title is required")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, core.InvalidArgumentf("description is required")
	}
	if err := s.validateFiles(in.Files); err != nil {
		return nil, err
	}

	urls, err := s.uploadAll(ctx, callerID, in.Files)
	if err != nil {
		return nil, err
	}

	tags := SplitTags(in.TagsRaw)
	if in.TagsRaw == "" && in.Tags != nil {
		tags = CleanTags(in.Tags)
	}

	now := s.now()
	car, err := s.store.Insert(ctx, &core.Car{
		OwnerID:     callerID,
		Title:       title,
		Description: description,
		Tags:        tags,
		Images:      urls,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		s.cleanup(callerID, "", urls, "create failed")
		return nil, core.AsStoreError(err, "failed to create car")
	}
	return car, nil
}

// List returns the caller's cars, newest first.
func (s *Service) List(ctx context.Context, callerID string) ([]*core.Car, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	cars, err := s.store.FindByOwner(ctx, callerID)
	if err != nil {
		return nil, core.AsStoreError(err, "failed to list cars")
	}
	return cars, nil
}

// Search runs a keyword search over the caller's cars, most relevant
// first. A nil keyword is invalid; a blank one browses (see
// Options.BrowseAllOnEmptySearch).
func (s *Service) Search(ctx context.Context, callerID string, keyword *string) ([]*core.Car, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if keyword == nil {
		return nil, core.InvalidArgumentf("keyword is required")
	}

	var (
		cars []*core.Car
		err  error
	)
	switch kw := strings.TrimSpace(*keyword); {
	case kw != "":
		cars, err = s.store.SearchText(ctx, callerID, kw)
	case s.opts.BrowseAllOnEmptySearch:
		cars, err = s.store.FindAll(ctx)
	default:
		cars, err = s.store.FindByOwner(ctx, callerID)
	}
	if err != nil {
		return nil, core.AsQueryError(err, "failed to search cars")
	}
	return cars, nil
}

// GetByID returns the car only if the caller owns it. A car of another
// owner is reported exactly like a missing one.
func (s *Service) GetByID(ctx context.Context, callerID, id string) (*core.Car, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, core.NotFoundf("car not found")
	}
	car, err := s.store.FindOne(ctx, id, callerID)
	if err != nil {
		return nil, core.AsQueryError(err, "failed to get car")
	}
	return car, nil
}

// Update applies the non-blank fields of patch. New files replace all
// images; the images they supersede are deleted in the background once
// the update is stored. Nothing changes if any upload fails.
func (s *Service) Update(ctx context.Context, callerID, id string, patch Patch) (*core.Car, error) {
	existing, err := s.GetByID(ctx, callerID, id)
	if err != nil {
		return nil, err
	}

	var update core.CarUpdate
	if patch.Title != nil {
		if t := strings.TrimSpace(*patch.Title); t != "" {
			update.Title = &t
		}
	}
	if patch.Description != nil {
		if d := strings.TrimSpace(*patch.Description); d != "" {
			update.Description = &d
		}
	}
	var tags []string
	switch {
	case patch.TagsRaw != nil:
		tags = SplitTags(*patch.TagsRaw)
	case patch.Tags != nil:
		tags = CleanTags(patch.Tags)
	}
	if len(tags) > 0 {
		update.Tags = tags
	}

	if len(patch.Files) > 0 {
		if err := s.validateFiles(patch.Files); err != nil {
			return nil, err
		}
		urls, err := s.uploadAll(ctx, callerID, patch.Files)
		if err != nil {
			return nil, err
		}
		update.Images = urls
	}

	if update.Empty() {
		return existing, nil
	}
	update.UpdatedAt = s.now()

	car, err := s.store.UpdateOne(ctx, id, callerID, update)
	if err != nil {
		s.cleanup(callerID, id, update.Images, "update failed")
		return nil, core.AsStoreError(err, "failed to update car")
	}

	if update.Images != nil {
		s.cleanup(callerID, id, superseded(existing.Images, update.Images), "images replaced")
	}
	return car, nil
}

// Delete removes the caller's car, then deletes its images in the
// background. Image cleanup failures are logged, never returned.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	if id == "" {
		return core.NotFoundf("car not found")
	}
	car, err := s.store.DeleteOne(ctx, id, callerID)
	if err != nil {
		return core.AsStoreError(err, "failed to delete car")
	}

	logrus.WithFields(logrus.Fields{"user_id": callerID, "car_id": id, "images": len(car.Images)}).Info("Car deleted")
	s.cleanup(callerID, id, car.Images, "car deleted")
	return nil
}

func superseded(old, replacement []string) []string {
	keep := make(map[string]struct{}, len(replacement))
	for _, u := range replacement {
		keep[u] = struct{}{}
	}
	var gone []string
	for _, u := range old {
		if _, ok := keep[u]; !ok {
			gone = append(gone, u)
		}
	}
	return gone
}
