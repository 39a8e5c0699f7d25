package stores

import (
	"car-management/blobs/filesystem"
	blobmemory "car-management/blobs/memory"
	"car-management/blobs/s3"
	"car-management/config"
	"car-management/core"
	"car-management/stores/cache"
	"car-management/stores/memory"
	"car-management/stores/mongo"
	"car-management/stores/sqlite"
	"context"
	"net/http"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all record store types.
type Store interface {
	core.CarStore
	core.UserStore
}

// CloseFunc releases the connections held by a store.
type CloseFunc func(ctx context.Context) error

// MediaHandler is implemented by blob stores that serve their own files.
type MediaHandler interface {
	Handler() http.Handler
}

type cachedStore struct {
	core.CarStore
	core.UserStore
}

func noopClose(context.Context) error { return nil }

// GetStore opens the record store selected by cfg.StorageType and, when a
// redis address is configured, puts a read-through car cache in front of it.
func GetStore(ctx context.Context, cfg *config.Config) (Store, CloseFunc, error) {
	var (
		store    Store
		closeFn  CloseFunc = noopClose
		storeLog           = logrus.Fields{"storageType": cfg.StorageType}
	)

	switch cfg.StorageType {
	case "sqlite":
		storeLog["dataSourceName"] = cfg.DataSourceName
		s, err := sqlite.NewStore(cfg.DataSourceName)
		if err != nil {
			return nil, nil, errors.Annotate(err, "failed to open sqlite store")
		}
		store = s
		closeFn = func(context.Context) error { return s.Close() }
	case "mongo":
		storeLog["database"] = cfg.MongoDatabase
		s, err := mongo.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, errors.Annotate(err, "failed to open mongo store")
		}
		store = s
		closeFn = s.Close
	default:
		store = memory.NewStore()
		storeLog["storageType"] = "in-memory"
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			closeFn(ctx)
			return nil, nil, errors.Trace(err)
		}
		storeLog["redis"] = cfg.RedisAddr
		store = cachedStore{
			CarStore:  cache.NewCarCache(store, client, cfg.RedisTTL),
			UserStore: store,
		}
		closeStore := closeFn
		closeFn = func(ctx context.Context) error {
			if err := client.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
			return closeStore(ctx)
		}
	}

	logrus.WithFields(storeLog).Info("Use storage")
	return store, closeFn, nil
}

// GetBlobStore opens the image store selected by cfg.BlobType.
func GetBlobStore(ctx context.Context, cfg *config.Config) (core.BlobStore, error) {
	blobLog := logrus.Fields{"blobType": cfg.BlobType}
	var store core.BlobStore

	switch cfg.BlobType {
	case "filesystem":
		blobLog["basePath"] = cfg.LocalStoragePath
		s, err := filesystem.NewStore(cfg.LocalStoragePath, cfg.PublicBaseURL)
		if err != nil {
			return nil, errors.Trace(err)
		}
		store = s
	case "s3":
		blobLog["bucketName"] = cfg.S3BucketName
		s, err := s3.NewStore(ctx, cfg.S3BucketName, cfg.S3PublicURL, cfg.S3Prefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		store = s
	default:
		blobLog["blobType"] = "in-memory"
		store = blobmemory.NewStore(cfg.PublicBaseURL)
	}

	logrus.WithFields(blobLog).Info("Use blob storage")
	return store, nil
}
