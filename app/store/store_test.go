package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []Item {
	return []Item{
		{
			URL:             "https://example.com/a",
			Title:           "Kernel exploit disclosed",
			SourceURL:       "https://example.com/rss",
			Characteristics: map[string]string{"topic": "security", "region": "eu"},
		},
		{
			URL:             "https://example.com/b",
			Title:           "Übersicht: Nachrichten",
			SourceURL:       "https://example.com/rss",
			Characteristics: map[string]string{"topic": "news"},
		},
		{
			URL:             "https://other.example.org/c",
			Title:           "",
			SourceURL:       "https://other.example.org/feed",
			Characteristics: map[string]string{},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "priority_queue.json"))
	items := sampleItems()

	require.NoError(t, s.Save(items))
	loaded := s.Load()
	require.NoError(t, s.Save(loaded))

	assert.Equal(t, items, s.Load())
}

func TestStore_LoadMissing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))

	items := s.Load()
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestStore_LoadMalformed(t *testing.T) {
	tests := map[string]string{
		"truncated": `[{"url":"a"`,
		"object":    `{"url":"a"}`,
		"empty":     "",
		"blank":     "  \n",
		"null":      "null",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "priority_queue.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			items := New(path).Load()
			assert.NotNil(t, items)
			assert.Empty(t, items)
		})
	}
}

func TestStore_SaveNilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "priority_queue.json")
	s := New(path)

	require.NoError(t, s.Save(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_SaveReplacesContent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "priority_queue.json"))
	require.NoError(t, s.Save(sampleItems()))

	require.NoError(t, s.Save(sampleItems()[:1]))

	loaded := s.Load()
	require.Len(t, loaded, 1)
	assert.Equal(t, "https://example.com/a", loaded[0].URL)
}
