package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"novelhub/internal/repository"
	"novelhub/internal/repository/sqlite"
	"novelhub/internal/storage"
	"novelhub/internal/upload"
)

type testEnv struct {
	users  repository.UserRepository
	novels repository.NovelRepository
	store  *storage.LocalService
	covers *upload.Uploader
	log    *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "novelhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(ctx))
	novels := sqlite.NewNovelRepository(db)
	require.NoError(t, novels.Init(ctx))

	store, err := storage.NewLocalService(filepath.Join(t.TempDir(), "uploads"), "/uploads")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	return &testEnv{
		users:  users,
		novels: novels,
		store:  store,
		covers: upload.NewUploader(store, logger),
		log:    logger,
	}
}

func (e *testEnv) userService() UserService {
	return NewUserService(e.users, e.log, WithHashCost(bcrypt.MinCost))
}

func (e *testEnv) novelService(opts ...func(*NovelServiceConfig)) NovelService {
	cfg := NovelServiceConfig{Novels: e.novels, Covers: e.covers, Logger: e.log}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewNovelService(cfg)
}

func storedFiles(t *testing.T, store *storage.LocalService) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(store.Dir(), "*"))
	require.NoError(t, err)
	return files
}
