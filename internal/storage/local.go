package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidName          = errors.New("invalid object name")
	ErrBytesWrittenMismatch = errors.New("bytes written mismatch")
)

// LocalService stores assets as plain files in a single directory.
type LocalService struct {
	dir       string
	urlPrefix string
}

func NewLocalService(dir, urlPrefix string) (*LocalService, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("asset directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &LocalService{
		dir:       filepath.Clean(dir),
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

// Dir returns the directory holding the stored files.
func (s *LocalService) Dir() string {
	return s.dir
}

// URLPrefix is the public path under which the directory is served.
func (s *LocalService) URLPrefix() string {
	return s.urlPrefix
}

func (s *LocalService) Put(ctx context.Context, name string, body io.Reader, contentType string) (Object, error) {
	target, err := s.path(name)
	if err != nil {
		return Object{}, err
	}

	// write next to the target and link it into place so readers never see a
	// partial file and an existing file is never replaced
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err != nil {
		return Object{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return Object{}, fmt.Errorf("sync %s: %w", name, err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.Size() != written {
		return Object{}, fmt.Errorf("%w: expected %d, got %d", ErrBytesWrittenMismatch, written, info.Size())
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrObjectExists, name)
		}
		return Object{}, fmt.Errorf("link %s: %w", name, err)
	}

	return Object{Name: name, Size: written, ContentType: contentType}, nil
}

func (s *LocalService) Delete(ctx context.Context, name string) error {
	target, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", name, ErrObjectNotFound)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (s *LocalService) Exists(ctx context.Context, name string) (bool, error) {
	target, err := s.path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return true, nil
}

func (s *LocalService) URL(ctx context.Context, name string) (string, error) {
	if _, err := s.path(name); err != nil {
		return "", err
	}
	return path.Join(s.urlPrefix, url.PathEscape(name)), nil
}

func (s *LocalService) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Service = (*LocalService)(nil)
