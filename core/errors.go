package core

import (
	"fmt"

	"github.com/juju/errors"
)

// Error kinds shared by stores, services and handlers. Callers test for
// them with errors.Is; messages stay whatever the producer wrote.
const (
	// NotFound is raised when no record matches the id and owner.
	NotFound = errors.ConstError("not found")

	// InvalidArgument is raised for missing or malformed input.
	InvalidArgument = errors.ConstError("invalid argument")

	// Unauthorized is raised for bad, expired or missing credentials.
	Unauthorized = errors.ConstError("unauthorized")

	// AlreadyExists is raised when a unique field is already taken.
	AlreadyExists = errors.ConstError("already exists")

	// UploadError is raised when the blob store rejects or fails a file.
	UploadError = errors.ConstError("upload failed")

	// StoreError is raised when the persistence layer is unavailable or
	// a write fails.
	StoreError = errors.ConstError("store failure")

	// QueryError is raised when a read query fails. It is also a StoreError.
	QueryError = errors.ConstError("query failed")
)

func NotFoundf(format string, args ...any) error {
	return errors.WithType(errors.New(fmt.Sprintf(format, args...)), NotFound)
}

func InvalidArgumentf(format string, args ...any) error {
	return errors.WithType(errors.New(fmt.Sprintf(format, args...)), InvalidArgument)
}

func Unauthorizedf(format string, args ...any) error {
	return errors.WithType(errors.New(fmt.Sprintf(format, args...)), Unauthorized)
}

func AlreadyExistsf(format string, args ...any) error {
	return errors.WithType(errors.New(fmt.Sprintf(format, args...)), AlreadyExists)
}

// AsUploadError marks err as an UploadError, annotated with msg.
func AsUploadError(err error, msg string) error {
	return errors.WithType(errors.Annotate(err, msg), UploadError)
}

// AsStoreError marks err as a StoreError unless it already carries one of
// the caller-facing kinds (NotFound, AlreadyExists, InvalidArgument).
func AsStoreError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isDomainKind(err) {
		return err
	}
	return errors.WithType(errors.Annotate(err, msg), StoreError)
}

// AsQueryError is AsStoreError for reads.
func AsQueryError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isDomainKind(err) {
		return err
	}
	return errors.WithType(errors.WithType(errors.Annotate(err, msg), StoreError), QueryError)
}

func isDomainKind(err error) bool {
	return errors.Is(err, NotFound) ||
		errors.Is(err, AlreadyExists) ||
		errors.Is(err, InvalidArgument) ||
		errors.Is(err, StoreError)
}
