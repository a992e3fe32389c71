package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/storage"
)

// intakeTimeout bounds registration plus index build for one inbox file.
const intakeTimeout = 10 * time.Minute

// Intake moves settled inbox files into managed storage, registers their
// metadata, and builds their index. Wire its Handle method as the Inbox
// callback.
type Intake struct {
	store   storage.Storage
	files   *storage.FileStore
	service *qa.Service
	logger  *zap.Logger
}

// NewIntake creates an intake stage.
func NewIntake(store storage.Storage, files *storage.FileStore, service *qa.Service, logger *zap.Logger) *Intake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{store: store, files: files, service: service, logger: logger}
}

// Handle processes one settled inbox file. The file is moved out of the
// inbox first so a crash mid-intake cannot process it twice.
func (i *Intake) Handle(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), intakeTimeout)
	defer cancel()

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(path))
	name := filepath.Base(path)

	dest, err := i.files.Move(path, id, ext)
	if err != nil {
		i.logger.Warn("intake move failed", zap.String("path", path), zap.Error(err))
		return
	}
	size, err := fileSize(dest)
	if err != nil {
		i.logger.Warn("intake stat failed", zap.String("path", dest), zap.Error(err))
		return
	}

	doc := &models.Document{
		ID:        id,
		Name:      name,
		Path:      dest,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	if err := i.store.CreateDocument(ctx, doc); err != nil {
		i.logger.Error("intake register failed", zap.String("name", name), zap.Error(err))
		return
	}
	i.logger.Info("inbox document registered",
		zap.String("id", id), zap.String("name", name), zap.Int64("size", size))

	if err := i.service.Ingest(ctx, id); err != nil {
		i.logger.Warn("intake ingestion failed", zap.String("id", id), zap.Error(err))
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
