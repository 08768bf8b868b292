package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

func collectScan(t *testing.T, src *Source) []domain.SourceItem {
	t.Helper()

	items, errs := src.Scan(context.Background())
	var collected []domain.SourceItem
	for item := range items {
		collected = append(collected, item)
	}
	for err := range errs {
		require.NoError(t, err)
	}
	return collected
}

func TestScan_EmitsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note_one.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "receipt.eml"), []byte("From: a@b\r\n\r\nbody"), 0644))

	src := New(dir)
	defer src.Close()

	items := collectScan(t, src)
	require.Len(t, items, 2)

	byTitle := make(map[string]domain.SourceItem)
	for _, item := range items {
		byTitle[item.Title] = item
	}

	note, ok := byTitle["note one"]
	require.True(t, ok)
	assert.Equal(t, domain.SourceNote, note.SourceType)
	assert.Equal(t, []byte("hello"), note.RawContent)
	assert.True(t, filepath.IsAbs(note.SourceID))
	assert.Contains(t, note.SourceURI, "file://")
	assert.False(t, note.CreatedAt.IsZero())

	eml, ok := byTitle["receipt"]
	require.True(t, ok)
	assert.Equal(t, domain.SourceEmail, eml.SourceType)
	assert.Equal(t, "message/rfc822", eml.MIMEType)
}

func TestScan_SkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "config"), []byte("x"), 0644))

	src := New(dir)
	defer src.Close()

	items := collectScan(t, src)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].SourceURI, "visible.txt")
}

func TestScan_MissingRoot(t *testing.T) {
	src := New("/non/existent/path")
	defer src.Close()

	items, errs := src.Scan(context.Background())
	for range items {
	}

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected an error for missing root")
	}
}

func TestScan_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "file"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
	}

	src := New(dir)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, _ := src.Scan(ctx)
	var count int
	for range items {
		count++
	}
	assert.Less(t, count, 5)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want domain.SourceType
	}{
		{"a.eml", domain.SourceEmail},
		{"a.pdf", domain.SourcePDF},
		{"a.png", domain.SourceImage},
		{"a.JPG", domain.SourceImage},
		{"a.html", domain.SourceWebpage},
		{"a.txt", domain.SourceNote},
		{"a.md", domain.SourceNote},
		{"no-extension", domain.SourceNote},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, mimeType := classify(tt.path)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, mimeType)
		})
	}
}

func TestWatch_EmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	src := New(dir)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items, errs := src.Watch(ctx)

	// Give the watcher a moment before producing events.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new_note.txt"), []byte("fresh"), 0644))

	select {
	case item := <-items:
		assert.Equal(t, "new note", item.Title)
		assert.Equal(t, []byte("fresh"), item.RawContent)
	case err := <-errs:
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	src := New(dir)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	items, _ := src.Watch(ctx)
	cancel()

	select {
	case _, ok := <-items:
		assert.False(t, ok, "items channel should close on cancel")
	case <-time.After(3 * time.Second):
		t.Fatal("items channel did not close")
	}
}
