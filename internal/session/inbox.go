package session

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/nlp"
)

// Inbox feeds files from watched directories into a session.
type Inbox struct {
	ctx     context.Context
	session *Session
	logger  *zap.Logger
}

// NewInbox returns a watcher handler that adds and removes files in s. ctx bounds every batch.
func NewInbox(ctx context.Context, s *Session, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{ctx: ctx, session: s, logger: logger}
}

// FileChanged adds path, replacing any document previously read from it.
func (in *Inbox) FileChanged(path string) {
	res, err := in.session.AddFiles(in.ctx, []FileInput{{Filename: filepath.Base(path), Path: path, SourcePath: path}})
	if err != nil {
		var mu *nlp.ModelUnavailableError
		if errors.As(err, &mu) {
			in.logger.Warn("inbox file skipped", zap.String("path", path), zap.Error(err))
			return
		}
		in.logger.Error("inbox file failed", zap.String("path", path), zap.Error(err))
		return
	}
	if res.Failed > 0 {
		in.logger.Warn("inbox file not added", zap.String("path", path), zap.String("error", res.Documents[0].Error))
		return
	}
	in.logger.Info("inbox file added", zap.String("path", path), zap.Int("entities", res.Documents[0].EntityCount))
}

// FileRemoved drops documents read from path.
func (in *Inbox) FileRemoved(path string) {
	if err := in.session.RemoveBySource(in.ctx, path); err != nil {
		in.logger.Error("inbox removal failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Info("inbox file removed", zap.String("path", path))
}
