package state

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wansanai/ParquetGrip/core"
)

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/home/u/.parquetgrip/state.json")

	doc := &Document{
		ActiveTab: 1,
		Layout:    json.RawMessage(`{"w":1024,"h":768}`),
		Tabs: []Tab{
			{Path: "/data/a.parquet", Format: "parquet", Filter: "amount > 10", Sort: "id DESC", PageIndex: 3, PageSize: 500, ScrollOffset: 42},
			{Path: "/data/b.csv", Format: "csv"},
		},
	}
	require.NoError(t, store.Save(doc))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DocumentVersion, got.Version)
	assert.Equal(t, 1, got.ActiveTab)
	assert.JSONEq(t, `{"w":1024,"h":768}`, string(got.Layout))
	require.Len(t, got.Tabs, 2)
	assert.Equal(t, doc.Tabs[0], got.Tabs[0])
	assert.Equal(t, doc.Tabs[1], got.Tabs[1])
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/nope/state.json")

	doc, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Tabs)
	assert.Equal(t, -1, doc.ActiveTab)
}

func TestStoreLoadCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte("{not json"), 0o644))

	store := NewStore(fs, "/state.json")
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistenceCorrupt))
}

func TestStoreLoadIgnoresUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw := `{
		"version": 7,
		"active_tab": 0,
		"future_feature": {"nested": true},
		"tabs": [{"path": "/data/a.parquet", "theme": "dark"}]
	}`
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(raw), 0o644))

	store := NewStore(fs, "/state.json")
	doc, err := store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Tabs, 1)
	assert.Equal(t, "/data/a.parquet", doc.Tabs[0].Path)
	// Missing fields default to zero values.
	assert.Equal(t, 0, doc.Tabs[0].PageIndex)
	assert.Empty(t, doc.Tabs[0].Filter)
}

func TestStoreSaveLeavesNoTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/dir/state.json")

	require.NoError(t, store.Save(&Document{ActiveTab: -1}))

	exists, err := afero.Exists(fs, "/dir/state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	tmpExists, err := afero.Exists(fs, "/dir/state.json.tmp")
	require.NoError(t, err)
	assert.False(t, tmpExists)
}

func TestStoreSaveOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/state.json")

	require.NoError(t, store.Save(&Document{ActiveTab: 0, Tabs: []Tab{{Path: "/a.parquet"}}}))
	require.NoError(t, store.Save(&Document{ActiveTab: 0, Tabs: []Tab{{Path: "/b.parquet"}}}))

	doc, err := store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Tabs, 1)
	assert.Equal(t, "/b.parquet", doc.Tabs[0].Path)
}
