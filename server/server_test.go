package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wansanai/ParquetGrip/core"
	"github.com/wansanai/ParquetGrip/manager"
	"github.com/wansanai/ParquetGrip/session"
)

type fakeRelation struct {
	name string
	path string
}

func (r *fakeRelation) Name() string   { return r.name }
func (r *fakeRelation) Path() string   { return r.path }
func (r *fakeRelation) Format() string { return "csv" }
func (r *fakeRelation) Schema() []core.Column {
	return []core.Column{{Name: "id", Type: "BIGINT"}, {Name: "name", Type: "VARCHAR"}}
}

type fakeEngine struct {
	mu      sync.Mutex
	nextID  int
	missing map[string]bool
}

func (f *fakeEngine) Register(ctx context.Context, path, format string) (core.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[path] {
		return nil, fmt.Errorf("%w: %s does not exist", core.ErrIO, path)
	}
	f.nextID++
	return &fakeRelation{name: fmt.Sprintf("t%d", f.nextID), path: path}, nil
}

func (f *fakeEngine) Deregister(core.Relation) error { return nil }

func (f *fakeEngine) Execute(ctx context.Context, stmt string) ([]core.Column, [][]string, error) {
	return (&fakeRelation{}).Schema(), [][]string{{"1", "alice"}, {"2", "bob"}}, nil
}

func (f *fakeEngine) RowCount(ctx context.Context, rel core.Relation) (int64, error) {
	return 2, nil
}

func (f *fakeEngine) Close() error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr := manager.New(&fakeEngine{}, nil, manager.Options{PageSize: 10})
	t.Cleanup(mgr.Close)
	ts := httptest.NewServer(New(mgr).Router())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestOpenAndListTabs(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/a.csv"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["index"])
	assert.NotContains(t, body, "error")

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/b.csv"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["index"])

	resp, list := doJSON(t, http.MethodGet, ts.URL+"/tabs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), list["active_tab"])
	tabs := list["tabs"].([]any)
	require.Len(t, tabs, 2)
	first := tabs[0].(map[string]any)
	assert.Equal(t, "/data/a.csv", first["path"])
	assert.Equal(t, "a.csv", first["name"])
	assert.Equal(t, false, first["active"])
}

func TestOpenTabMissingPath(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/tabs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing path", body["error"])
}

func TestOpenTabEngineErrorReportsIndexAndError(t *testing.T) {
	mgr := manager.New(&fakeEngine{missing: map[string]bool{"/gone.csv": true}}, nil, manager.Options{PageSize: 10})
	t.Cleanup(mgr.Close)
	ts := httptest.NewServer(New(mgr).Router())
	t.Cleanup(ts.Close)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/gone.csv"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["index"])
	assert.Contains(t, body["error"], "does not exist")
}

func TestGetPage(t *testing.T) {
	ts, mgr := newTestServer(t)
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/a.csv"})

	tab, err := mgr.Tab(0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tab.Phase() == session.PhaseReady
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get(ts.URL + "/tabs/0/page")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "ready", view.Phase)
	assert.Equal(t, [][]string{{"1", "alice"}, {"2", "bob"}}, view.Rows)
	require.Len(t, view.Columns, 2)
	assert.Equal(t, "id", view.Columns[0].Name)
}

func TestSetFilterAndRefreshRoutes(t *testing.T) {
	ts, mgr := newTestServer(t)
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/a.csv"})

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/tabs/0/filter", map[string]string{"filter": "id > 1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/tabs/0/sort", map[string]string{"sort": "id DESC"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/tabs/0/page", map[string]int{"index": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/tabs/0/scroll", map[string]int{"offset": 42})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/tabs/0/refresh", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tab, err := mgr.Tab(0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tab.Phase() == session.PhaseReady
	}, 2*time.Second, 5*time.Millisecond)
	v := tab.View()
	assert.Equal(t, "id > 1", v.Filter)
	assert.Equal(t, "id DESC", v.Sort)
	assert.Equal(t, 3, v.PageIndex)
	assert.Equal(t, 42, v.ScrollOffset)
}

func TestUnknownTabIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/tabs/5/filter", map[string]string{"filter": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/tabs/5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadTabIndexIs400(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/tabs/frog/refresh", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid tab index", body["error"])
}

func TestCloseTabAndActivate(t *testing.T) {
	ts, mgr := newTestServer(t)
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/a.csv"})
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/tabs", OpenTabRequest{Path: "/data/b.csv"})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/tabs/0/activate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, active := mgr.Active()
	assert.Equal(t, 0, active)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/tabs/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, mgr.Tabs(), 1)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/tabs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
