package core

import "context"

type (
	// Upload is one image attached to a create or update request.
	Upload struct {
		Filename    string
		ContentType string
		Data        []byte
	}

	// BlobStore keeps uploaded images outside the record store.
	BlobStore interface {
		// Upload stores the file and returns a URL it can be fetched from.
		Upload(ctx context.Context, file Upload) (string, error)

		// Delete removes the blob with the given id.
		Delete(ctx context.Context, blobID string) error

		// IDFromURL derives the blob id Delete expects from a URL previously
		// returned by Upload.
		IDFromURL(url string) (string, error)
	}
)
