package s3

import (
	"bytes"
	"car-management/blobs"
	"car-management/core"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// objectAPI is the part of the S3 client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// s3Store keeps images as objects in a bucket. Its blob ids are object
// keys, so IDFromURL strips the public base URL rather than the extension.
type s3Store struct {
	client    objectAPI
	bucket    string
	publicURL string
	prefix    string
}

// NewStore creates an S3 blob store using the default AWS credential chain.
// publicURL is the base the bucket is reachable at; empty means the
// virtual-hosted S3 endpoint of the configured region.
func NewStore(ctx context.Context, bucket, publicURL, prefix string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "unable to load SDK config")
	}
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, cfg.Region)
	}
	return newStore(s3.NewFromConfig(cfg), bucket, publicURL, prefix), nil
}

func newStore(client objectAPI, bucket, publicURL, prefix string) *s3Store {
	return &s3Store{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		prefix:    strings.Trim(prefix, "/"),
	}
}

func (s *s3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *s3Store) Upload(ctx context.Context, file core.Upload) (string, error) {
	key := s.key(blobs.NewID() + blobs.Extension(file))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file.Data),
		ContentType: aws.String(file.ContentType),
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"bucket": s.bucket, "key": key}).WithError(err).Error("Failed to upload image")
		return "", errors.Annotatef(err, "failed to upload %s", key)
	}
	return s.publicURL + "/" + key, nil
}

func (s *s3Store) Delete(ctx context.Context, blobID string) error {
	if blobID == "" || strings.Contains(blobID, "..") {
		return core.InvalidArgumentf("invalid blob id %q", blobID)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		return errors.Annotatef(err, "failed to delete %s", blobID)
	}
	return nil
}

func (s *s3Store) IDFromURL(url string) (string, error) {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok || key == "" {
		return "", core.InvalidArgumentf("%q is not an object of bucket %s", url, s.bucket)
	}
	if s.prefix != "" && !strings.HasPrefix(key, s.prefix+"/") {
		return "", core.InvalidArgumentf("%q is outside prefix %s", url, s.prefix)
	}
	return key, nil
}
