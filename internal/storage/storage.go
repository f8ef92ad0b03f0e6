package storage

import (
	"context"
	"io"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Deleter interface {
	Delete(ctx context.Context, objectName string) error
}

// Stager holds objects only for as long as a job needs them.
type Stager interface {
	Uploader
	Deleter
}
