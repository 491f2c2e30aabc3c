package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/verba/internal/annotation"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/docwatch"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/metrics"
	"github.com/starford/verba/internal/notify"
	"github.com/starford/verba/internal/storage"
	"github.com/starford/verba/internal/store"
)

// engine is every long-lived component, wired together.
type engine struct {
	db        *store.DB
	documents *storage.FS
	broker    *events.Broker
	metrics   *metrics.Metrics

	highlights *highlight.Service
	board      *annotation.Board
	checklist  *checklist.Service
	syncer     *docwatch.Syncer

	closeOnce sync.Once
}

// newEngine opens storage and the database, reconciles the documents
// directory and loads highlights and annotations into memory.
func newEngine(ctx context.Context, cfg *Config, logger *slog.Logger) (*engine, error) {
	if err := os.MkdirAll(cfg.Documents.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	docs, err := storage.NewFS(cfg.Documents.Path, cfg.Documents.Extensions...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	broker := events.NewBroker(cfg.Events.ClientBuffer)
	m, err := metrics.New(broker.ClientCount)
	if err != nil {
		broker.Close()
		db.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	notifier := notify.NewBroadcaster(broker, logger)

	hl := highlight.NewService(highlight.NewRegistry(), db, broker, notifier, logger)
	hl.SetMetrics(m)
	board := annotation.NewBoard(db, broker, notifier,
		annotation.WithMarkerSize(cfg.Canvas.MarkerSize()),
		annotation.WithHighlights(hl.Registry()),
		annotation.WithMetrics(m),
		annotation.WithLogger(logger),
	)
	cl := checklist.NewService(db, broker, notifier, m, logger)

	e := &engine{
		db:         db,
		documents:  docs,
		broker:     broker,
		metrics:    m,
		highlights: hl,
		board:      board,
		checklist:  cl,
	}
	e.syncer = &docwatch.Syncer{
		Index:    db,
		Docs:     docs,
		Reset:    hl,
		Logger:   logger,
		OnChange: e.documentChanged(ctx, logger),
	}

	if err := hl.Hydrate(ctx); err != nil {
		e.close()
		return nil, err
	}
	if err := e.syncer.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	if err := e.loadAnnotations(ctx); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

// loadAnnotations hydrates the board with every stored annotation, including
// those on documents that are not recorded.
func (e *engine) loadAnnotations(ctx context.Context) error {
	return e.board.Load(ctx, "")
}

// documentChanged loads the annotations of documents that appear while
// running; other instances may have annotated them already.
func (e *engine) documentChanged(ctx context.Context, logger *slog.Logger) docwatch.Callback {
	return func(kind, path string) {
		logger.Info("document changed", slog.String("kind", kind), slog.String("path", path))
		if kind != docwatch.KindCreated {
			return
		}
		if err := e.board.Load(ctx, path); err != nil {
			logger.Warn("load annotations failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

func (e *engine) close() {
	e.closeOnce.Do(func() {
		e.board.Close()
		e.checklist.Close()
		e.broker.Close()
		if err := e.db.Close(); err != nil {
			slog.Error("close store failed", slog.String("error", err.Error()))
		}
	})
}
