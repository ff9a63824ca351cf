package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned when a named object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put when name is already taken.
	ErrObjectExists = errors.New("object already exists")
)

// Object describes a stored asset.
type Object struct {
	Name        string
	Size        int64
	ContentType string
}

// Service persists uploaded assets under flat, caller-chosen names.
//
// Put must not leave a partially written object visible under name when it
// fails, and never replaces an existing object: a taken name yields
// ErrObjectExists.
type Service interface {
	Put(ctx context.Context, name string, body io.Reader, contentType string) (Object, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	URL(ctx context.Context, name string) (string, error)
}
