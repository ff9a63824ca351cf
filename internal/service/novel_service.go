package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"novelhub/internal/domain"
	"novelhub/internal/repository"
	"novelhub/internal/upload"
)

const shelfSize = 5

const (
	CodeMissingTitle ValidationCode = "missing_title"
	CodeMissingBody  ValidationCode = "missing_body"
)

// Covers stores and removes cover images. *upload.Uploader implements it.
type Covers interface {
	Accept(ctx context.Context, file upload.File) (*upload.Asset, error)
	Remove(ctx context.Context, name string)
	URL(ctx context.Context, name string) (string, error)
}

// CreateNovelInput is a submitted novel. Cover is nil when no file was sent.
type CreateNovelInput struct {
	Title string
	Body  string
	Genre domain.Genre
	Cover *upload.File
}

// Shelves are the three short listings of the home page.
type Shelves struct {
	Newest   []domain.Novel
	ByTitle  []domain.Novel
	ByAuthor []domain.Novel
}

// NovelService coordinates the novel lifecycle with its cover asset.
type NovelService interface {
	Create(ctx context.Context, author *domain.User, in CreateNovelInput) (*domain.Novel, error)
	Get(ctx context.Context, id int64) (*domain.Novel, error)
	GetOwned(ctx context.Context, id int64, user *domain.User) (*domain.Novel, error)
	Browse(ctx context.Context) iter.Seq2[domain.Novel, error]
	ByAuthor(ctx context.Context, username string) iter.Seq2[domain.Novel, error]
	ByGenre(ctx context.Context, genre domain.Genre) iter.Seq2[domain.Novel, error]
	Search(ctx context.Context, query string) iter.Seq2[domain.Novel, error]
	Featured(ctx context.Context) (Shelves, error)
	Delete(ctx context.Context, id int64, user *domain.User) error
	CoverURL(ctx context.Context, novel domain.Novel) string
}

// NovelServiceConfig wires a NovelService.
type NovelServiceConfig struct {
	Novels repository.NovelRepository
	Covers Covers
	// RemoveCoverOnDelete deletes the cover file together with the novel.
	RemoveCoverOnDelete bool
	Logger              logrus.FieldLogger
}

type novelService struct {
	novels              repository.NovelRepository
	covers              Covers
	removeCoverOnDelete bool
	log                 logrus.FieldLogger
}

func NewNovelService(cfg NovelServiceConfig) NovelService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &novelService{
		novels:              cfg.Novels,
		covers:              cfg.Covers,
		removeCoverOnDelete: cfg.RemoveCoverOnDelete,
		log:                 cfg.Logger.WithField("component", "novels"),
	}
}

// Create writes the cover first and the record second. A rejected cover is
// dropped silently; a failed cover write aborts before the record is
// attempted; a failed record write removes the cover again.
func (s *novelService) Create(ctx context.Context, author *domain.User, in CreateNovelInput) (*domain.Novel, error) {
	if author == nil {
		return nil, ErrUnauthorized
	}

	novel := &domain.Novel{
		Title:  strings.TrimSpace(in.Title),
		Author: author.Username,
		Body:   in.Body,
		Genre:  in.Genre,
	}
	var verrs ValidationErrors
	if novel.Title == "" {
		verrs = append(verrs, ValidationError{Code: CodeMissingTitle, Message: "Title is required!"})
	}
	if strings.TrimSpace(novel.Body) == "" {
		verrs = append(verrs, ValidationError{Code: CodeMissingBody, Message: "Content is required!"})
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	log := s.log.WithFields(logrus.Fields{"user": author.Username, "title": novel.Title})

	if in.Cover != nil && s.covers != nil {
		asset, err := s.covers.Accept(ctx, *in.Cover)
		switch {
		case errors.Is(err, upload.ErrRejected):
			log.WithField("mime_type", in.Cover.MIMEType).Info("saving novel without cover")
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ErrCoverUpload, err)
		default:
			novel.CoverRef = asset.Name
		}
	}

	if _, err := s.novels.Create(ctx, novel); err != nil {
		if novel.HasCover() {
			// cleanup must run even when the request context is already gone
			s.covers.Remove(context.WithoutCancel(ctx), novel.CoverRef)
		}
		log.WithError(err).Error("create novel failed")
		return nil, fmt.Errorf("%w: create novel: %w", ErrPersistence, err)
	}

	log.WithField("id", novel.ID).Info("novel created")
	return novel, nil
}

func (s *novelService) Get(ctx context.Context, id int64) (*domain.Novel, error) {
	novel, err := s.novels.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNovelNotFound
		}
		return nil, fmt.Errorf("%w: get novel: %w", ErrPersistence, err)
	}
	return novel, nil
}

// GetOwned returns the novel only when user wrote it; any other novel is
// reported as not found.
func (s *novelService) GetOwned(ctx context.Context, id int64, user *domain.User) (*domain.Novel, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	novel, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !novel.OwnedBy(user.Username) {
		return nil, ErrNovelNotFound
	}
	return novel, nil
}

func (s *novelService) Browse(ctx context.Context) iter.Seq2[domain.Novel, error] {
	return s.novels.List(ctx, repository.NovelFilter{})
}

func (s *novelService) ByAuthor(ctx context.Context, username string) iter.Seq2[domain.Novel, error] {
	if username == "" {
		return emptySeq
	}
	return s.novels.List(ctx, repository.NovelFilter{Author: username})
}

func (s *novelService) ByGenre(ctx context.Context, genre domain.Genre) iter.Seq2[domain.Novel, error] {
	if genre == domain.GenreUnset {
		return emptySeq
	}
	return s.novels.List(ctx, repository.NovelFilter{Genre: genre})
}

// Search treats an empty query as matching nothing rather than everything.
func (s *novelService) Search(ctx context.Context, query string) iter.Seq2[domain.Novel, error] {
	if strings.TrimSpace(query) == "" {
		return emptySeq
	}
	return s.novels.Search(ctx, query)
}

func (s *novelService) Featured(ctx context.Context) (Shelves, error) {
	var (
		shelves Shelves
		err     error
	)
	if shelves.Newest, err = collect(s.novels.List(ctx, repository.NovelFilter{Order: repository.OrderNewest, Limit: shelfSize})); err != nil {
		return Shelves{}, err
	}
	if shelves.ByTitle, err = collect(s.novels.List(ctx, repository.NovelFilter{Order: repository.OrderTitleDesc, Limit: shelfSize})); err != nil {
		return Shelves{}, err
	}
	if shelves.ByAuthor, err = collect(s.novels.List(ctx, repository.NovelFilter{Order: repository.OrderAuthorDesc, Limit: shelfSize})); err != nil {
		return Shelves{}, err
	}
	return shelves, nil
}

// Delete removes the novel when user is its author.
func (s *novelService) Delete(ctx context.Context, id int64, user *domain.User) error {
	if user == nil {
		return ErrUnauthorized
	}
	novel, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !novel.OwnedBy(user.Username) {
		s.log.WithFields(logrus.Fields{"id": id, "user": user.Username, "author": novel.Author}).Warn("delete refused")
		return ErrUnauthorized
	}

	if err := s.novels.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNovelNotFound
		}
		return fmt.Errorf("%w: delete novel: %w", ErrPersistence, err)
	}

	if s.removeCoverOnDelete && novel.HasCover() && s.covers != nil {
		s.covers.Remove(context.WithoutCancel(ctx), novel.CoverRef)
	}
	s.log.WithFields(logrus.Fields{"id": id, "user": user.Username}).Info("novel deleted")
	return nil
}

// CoverURL resolves the public cover location, or "" when there is none.
func (s *novelService) CoverURL(ctx context.Context, novel domain.Novel) string {
	if !novel.HasCover() || s.covers == nil {
		return ""
	}
	u, err := s.covers.URL(ctx, novel.CoverRef)
	if err != nil {
		s.log.WithError(err).WithField("cover", novel.CoverRef).Warn("resolve cover url failed")
		return ""
	}
	return u
}

func emptySeq(func(domain.Novel, error) bool) {}

func collect(seq iter.Seq2[domain.Novel, error]) ([]domain.Novel, error) {
	var out []domain.Novel
	for novel, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		out = append(out, novel)
	}
	return out, nil
}
