package repository

import "errors"

var (
	// ErrCatalogUnavailable is returned when a catalog source cannot be reached.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrUnexpectedStatus is returned when a catalog endpoint answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected catalog response status")

	// ErrMalformedCatalog is returned when a catalog response cannot be decoded.
	ErrMalformedCatalog = errors.New("malformed catalog response")
)

var (
	// ErrBucketNotFound is returned when the catalog bucket does not exist.
	ErrBucketNotFound = errors.New("catalog bucket not found")

	// ErrForeignCursor is returned when a next-page cursor does not belong to the catalog.
	ErrForeignCursor = errors.New("cursor does not belong to this catalog")
)
