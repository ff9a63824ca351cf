// Package upload accepts cover images and keeps them in asset storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"novelhub/internal/storage"
)

// ErrRejected means the file's declared media type is not an accepted image
// type. Callers create the record without a cover.
var ErrRejected = errors.New("upload rejected")

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

const (
	maxExtLength = 10
	// maxNameAttempts bounds how many stamps Accept tries when names are
	// already taken by another process sharing the store.
	maxNameAttempts = 8
)

// File is an incoming multipart file part.
type File struct {
	MIMEType     string
	OriginalName string
	Body         io.Reader
}

// Asset is a fully written stored file.
type Asset struct {
	Name        string
	ContentType string
	Size        int64
}

// Uploader validates incoming files, names them and writes them to storage.
type Uploader struct {
	store storage.Service
	log   logrus.FieldLogger
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

func NewUploader(store storage.Service, logger logrus.FieldLogger) *Uploader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Uploader{
		store: store,
		log:   logger.WithField("component", "uploader"),
		now:   time.Now,
	}
}

// Allowed reports whether a declared media type may become a cover.
func Allowed(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	_, ok := allowedTypes[strings.ToLower(mediaType)]
	return ok
}

// Accept stores file under a fresh timestamp name. It returns ErrRejected
// without writing anything when the media type is not allowed.
func (u *Uploader) Accept(ctx context.Context, file File) (*Asset, error) {
	if !Allowed(file.MIMEType) {
		u.log.WithFields(logrus.Fields{
			"mime_type": file.MIMEType,
			"original":  file.OriginalName,
		}).Info("cover upload rejected")
		return nil, ErrRejected
	}
	if file.Body == nil {
		return nil, fmt.Errorf("upload %q: empty body", file.OriginalName)
	}

	obj, err := u.put(ctx, file)
	if err != nil {
		return nil, err
	}

	u.log.WithFields(logrus.Fields{
		"name": obj.Name,
		"size": obj.Size,
	}).Debug("cover stored")

	return &Asset{Name: obj.Name, ContentType: obj.ContentType, Size: obj.Size}, nil
}

// put writes file under the first free stamp name. Names taken by another
// uploader on the same store are skipped; a name lost to a concurrent write
// is retried only when the body can be rewound.
func (u *Uploader) put(ctx context.Context, file File) (storage.Object, error) {
	for range maxNameAttempts {
		name := u.storedName(file.OriginalName)
		if taken, err := u.store.Exists(ctx, name); err == nil && taken {
			u.log.WithField("name", name).Debug("cover name taken, trying next")
			continue
		}

		obj, err := u.store.Put(ctx, name, file.Body, file.MIMEType)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, storage.ErrObjectExists) {
			return storage.Object{}, fmt.Errorf("store cover: %w", err)
		}
		seeker, ok := file.Body.(io.Seeker)
		if !ok {
			return storage.Object{}, fmt.Errorf("store cover: %w", err)
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return storage.Object{}, fmt.Errorf("rewind cover: %w", err)
		}
		u.log.WithField("name", name).Debug("cover name lost to concurrent upload, retrying")
	}
	return storage.Object{}, fmt.Errorf("store cover: %w: no free name after %d attempts", storage.ErrObjectExists, maxNameAttempts)
}

// Remove deletes a stored asset. Failures are logged and otherwise ignored.
func (u *Uploader) Remove(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := u.store.Delete(ctx, name); err != nil {
		u.log.WithError(err).WithField("name", name).Warn("remove cover failed")
		return
	}
	u.log.WithField("name", name).Debug("cover removed")
}

// URL resolves the public location of a stored asset.
func (u *Uploader) URL(ctx context.Context, name string) (string, error) {
	return u.store.URL(ctx, name)
}

func (u *Uploader) storedName(original string) string {
	return strconv.FormatInt(u.nextStamp(), 10) + extension(original)
}

// nextStamp returns unix milliseconds, bumped so it never repeats within the
// process.
func (u *Uploader) nextStamp() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	stamp := u.now().UnixMilli()
	if stamp <= u.last {
		stamp = u.last + 1
	}
	u.last = stamp
	return stamp
}

func extension(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
