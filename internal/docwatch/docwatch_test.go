package docwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/verba/internal/testutil"
)

type resetRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *resetRecorder) ResetDocument(_ context.Context, documentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, documentID)
	return []string{"h-" + documentID}, nil
}

func (r *resetRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ids)
}

type changeLog struct {
	mu      sync.Mutex
	entries []string
}

func (c *changeLog) record(kind, path string) {
	c.mu.Lock()
	c.entries = append(c.entries, kind+":"+path)
	c.mu.Unlock()
}

func (c *changeLog) has(e string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.entries, e)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newSyncer(t *testing.T) (string, *Syncer, *resetRecorder, *changeLog) {
	t.Helper()
	dir, docs := testutil.TestDocuments(t)
	rec := &resetRecorder{}
	log := &changeLog{}
	s := &Syncer{
		Index:    testutil.TestDB(t),
		Docs:     docs,
		Reset:    rec,
		Logger:   quietLogger(),
		OnChange: log.record,
	}
	return dir, s, rec, log
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSync_RecordsNewDocuments(t *testing.T) {
	dir, s, rec, log := newSyncer(t)
	ctx := context.Background()
	writeDoc(t, dir, "a.pdf", "%PDF-a")
	writeDoc(t, dir, "sub/b.pdf", "%PDF-b")
	writeDoc(t, dir, "notes.txt", "ignored")

	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	sums, err := s.Index.DocumentChecksums(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 || sums["a.pdf"] == "" || sums["sub/b.pdf"] == "" {
		t.Fatalf("checksums = %v", sums)
	}
	if len(rec.calls()) != 0 {
		t.Errorf("new documents must not reset highlights, got %v", rec.calls())
	}
	if !log.has("created:a.pdf") || !log.has("created:sub/b.pdf") {
		t.Errorf("missing created callbacks: %v", log.entries)
	}
}

func TestSync_ReplacedDocumentResetsHighlights(t *testing.T) {
	dir, s, rec, log := newSyncer(t)
	ctx := context.Background()
	writeDoc(t, dir, "a.pdf", "v1")
	writeDoc(t, dir, "b.pdf", "same")
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	writeDoc(t, dir, "a.pdf", "v2")
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if got := rec.calls(); !slices.Equal(got, []string{"a.pdf"}) {
		t.Fatalf("resets = %v, want [a.pdf]", got)
	}
	if !log.has("replaced:a.pdf") {
		t.Errorf("missing replaced callback: %v", log.entries)
	}

	// A third pass without changes is a no-op.
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls()) != 1 {
		t.Errorf("unchanged sync reset again: %v", rec.calls())
	}
}

func TestSync_RemovedDocumentIsForgotten(t *testing.T) {
	dir, s, rec, log := newSyncer(t)
	ctx := context.Background()
	writeDoc(t, dir, "gone.pdf", "x")
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "gone.pdf")); err != nil {
		t.Fatal(err)
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	sums, _ := s.Index.DocumentChecksums(ctx)
	if _, ok := sums["gone.pdf"]; ok {
		t.Error("removed document still recorded")
	}
	if got := rec.calls(); !slices.Equal(got, []string{"gone.pdf"}) {
		t.Errorf("resets = %v", got)
	}
	if !log.has("deleted:gone.pdf") {
		t.Errorf("missing deleted callback: %v", log.entries)
	}
}

func TestWatcher_NewAndReplacedDocument(t *testing.T) {
	dir, s, rec, log := newSyncer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx, dir)
	}()
	time.Sleep(100 * time.Millisecond)

	writeDoc(t, dir, "new.pdf", "v1")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("created:new.pdf")
	}, "new document not recorded by watcher")

	writeDoc(t, dir, "new.pdf", "v2")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("replaced:new.pdf")
	}, "replacement not detected by watcher")
	if got := rec.calls(); !slices.Contains(got, "new.pdf") {
		t.Errorf("resets = %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcher_RemovedDocument(t *testing.T) {
	dir, s, _, log := newSyncer(t)
	writeDoc(t, dir, "old.pdf", "x")
	if err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, dir)
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(filepath.Join(dir, "old.pdf")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("deleted:old.pdf")
	}, "removal not detected by watcher")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir, s, _, log := newSyncer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, dir)
	time.Sleep(100 * time.Millisecond)

	if err := os.MkdirAll(filepath.Join(dir, "vol2"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	writeDoc(t, dir, "vol2/c.pdf", "c")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("created:vol2/c.pdf")
	}, "document in new subdirectory not recorded")
}
