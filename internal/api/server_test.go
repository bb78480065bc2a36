package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/core/downloader"
	"github.com/justin2061/drivefetch/internal/core/loader"
	"github.com/justin2061/drivefetch/internal/core/retry"
	"github.com/justin2061/drivefetch/internal/infra/drive"
	"github.com/justin2061/drivefetch/internal/infra/storage/memory"
)

const testFolderID = "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs"

type fakeService struct {
	meta     map[string]*domain.File
	children map[string][]*domain.File
	listErr  error
}

func (f *fakeService) ListChildren(ctx context.Context, q domain.ListQuery) ([]*domain.File, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	return f.children[q.FolderID], "", nil
}

func (f *fakeService) GetFile(ctx context.Context, id, fields string) (*domain.File, error) {
	if m, ok := f.meta[id]; ok {
		return m, nil
	}
	return nil, &drive.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeService) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	n, err := w.Write([]byte("data"))
	return int64(n), err
}

func (f *fakeService) Export(ctx context.Context, fileID, mimeType string, w io.Writer) (int64, error) {
	n, err := w.Write([]byte("export"))
	return int64(n), err
}

type okChecker struct{}

func (okChecker) Health(ctx context.Context) error { return nil }

// fakeSnapshots is an in-memory stand-in for the Redis listing store.
type fakeSnapshots struct {
	items    map[string][]*domain.File
	complete map[string]bool
	saves    int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		items:    make(map[string][]*domain.File),
		complete: make(map[string]bool),
	}
}

func (f *fakeSnapshots) SaveListing(ctx context.Context, folderID string, items []*domain.File, complete bool) error {
	f.items[folderID] = items
	f.complete[folderID] = complete
	f.saves++
	return nil
}

func (f *fakeSnapshots) GetListing(ctx context.Context, folderID string) ([]*domain.File, bool, bool, error) {
	items, ok := f.items[folderID]
	if !ok {
		return nil, false, false, nil
	}
	return items, f.complete[folderID], true, nil
}

func (f *fakeSnapshots) DeleteListing(ctx context.Context, folderID string) error {
	delete(f.items, folderID)
	delete(f.complete, folderID)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeService) {
	return newSnapshotTestServer(t, nil)
}

func newSnapshotTestServer(t *testing.T, snaps Snapshots) (*httptest.Server, *fakeService) {
	t.Helper()
	svc := &fakeService{
		meta: map[string]*domain.File{
			testFolderID: {ID: testFolderID, Name: "root", MimeType: domain.MimeFolder},
		},
		children: map[string][]*domain.File{
			testFolderID: {
				{ID: "f1", Name: "a.txt", MimeType: "text/plain", Size: "10"},
				{ID: "f2", Name: "sub", MimeType: domain.MimeFolder},
			},
		},
	}

	repo := memory.NewTaskStore()
	engine := retry.New(retry.Policy{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Strategy:   retry.StrategyFixed,
	})
	cache := loader.NewCache(svc, time.Minute, loader.WithEngine(engine))
	manager := downloader.NewManager(svc, repo, downloader.WithOutputRoot(t.TempDir()))
	s := NewServer(cache, manager, repo, snaps, map[string]Checker{"self": okChecker{}}, 0, 0)

	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)
	return ts, svc
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var body struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	code := getJSON(t, ts.URL+"/health", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Components["self"]["status"] != "up" {
		t.Errorf("components = %v", body.Components)
	}
}

func TestFolderItems(t *testing.T) {
	ts, _ := newTestServer(t)

	var body struct {
		FolderID   string         `json:"folder_id"`
		Items      []*domain.File `json:"items"`
		TotalItems int            `json:"total_items"`
		HasMore    bool           `json:"has_more"`
	}
	code := getJSON(t, ts.URL+"/folders/"+testFolderID+"/items", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Items) != 2 || body.TotalItems != 2 {
		t.Errorf("items = %d total = %d, want 2/2", len(body.Items), body.TotalItems)
	}
	if body.HasMore {
		t.Error("has_more = true for exhausted listing")
	}
}

func TestFolderItems_InvalidID(t *testing.T) {
	ts, _ := newTestServer(t)
	if code := getJSON(t, ts.URL+"/folders/short/items", nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestFolderItems_SavesSnapshot(t *testing.T) {
	snaps := newFakeSnapshots()
	ts, _ := newSnapshotTestServer(t, snaps)

	if code := getJSON(t, ts.URL+"/folders/"+testFolderID+"/items", nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if snaps.saves != 1 {
		t.Fatalf("saves = %d, want 1", snaps.saves)
	}
	if len(snaps.items[testFolderID]) != 2 || !snaps.complete[testFolderID] {
		t.Errorf("snapshot = %d items complete=%v, want 2/true",
			len(snaps.items[testFolderID]), snaps.complete[testFolderID])
	}
}

func TestFolderItems_ServedFromSnapshot(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.items[testFolderID] = []*domain.File{
		{ID: "f1", Name: "a.txt", MimeType: "text/plain"},
		{ID: "f2", Name: "b.txt", MimeType: "text/plain"},
	}
	snaps.complete[testFolderID] = true

	ts, svc := newSnapshotTestServer(t, snaps)
	// The service must not be consulted when a complete snapshot exists.
	svc.listErr = &drive.APIError{StatusCode: 500, Message: "should not be called"}

	var body struct {
		Items   []*domain.File `json:"items"`
		HasMore bool           `json:"has_more"`
	}
	code := getJSON(t, ts.URL+"/folders/"+testFolderID+"/items", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Items) != 2 {
		t.Errorf("items = %d, want 2 from snapshot", len(body.Items))
	}
	if body.HasMore {
		t.Error("has_more = true for complete snapshot")
	}
}

func TestInvalidate_DropsSnapshot(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.items[testFolderID] = []*domain.File{{ID: "f1", Name: "a.txt"}}
	snaps.complete[testFolderID] = true

	ts, _ := newSnapshotTestServer(t, snaps)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/folders/"+testFolderID+"/cache", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if _, ok := snaps.items[testFolderID]; ok {
		t.Error("snapshot survived invalidation")
	}
}

func TestFolderItems_ServerErrorDegrades(t *testing.T) {
	ts, svc := newTestServer(t)
	svc.listErr = &drive.APIError{StatusCode: 503, Message: "backend unavailable"}

	var body struct {
		Items []*domain.File `json:"items"`
		Error string         `json:"error"`
	}
	code := getJSON(t, ts.URL+"/folders/"+testFolderID+"/items", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with empty listing", code)
	}
	if len(body.Items) != 0 {
		t.Errorf("items = %d, want 0", len(body.Items))
	}
	if body.Error == "" {
		t.Error("error message missing from degraded response")
	}
}

func TestFolderStats(t *testing.T) {
	ts, _ := newTestServer(t)

	var stats loader.Statistics
	code := getJSON(t, ts.URL+"/folders/"+testFolderID+"/stats", &stats)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.TotalFiles != 1 || stats.TotalFolders != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/tasks", "application/json",
		strings.NewReader(`{"source_id": "bogus", "output_path": "out"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"name": "root", "source_id": "` + testFolderID + `", "output_path": "out", "auto_start": false}`
	resp, err := http.Post(ts.URL+"/tasks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var task domain.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if task.Status != domain.TaskPending {
		t.Errorf("status = %s, want pending", task.Status)
	}

	var got struct {
		Task domain.Task `json:"task"`
	}
	if code := getJSON(t, ts.URL+"/tasks/"+task.ID, &got); code != http.StatusOK {
		t.Fatalf("get task status = %d", code)
	}
	if got.Task.ID != task.ID {
		t.Errorf("task id = %s, want %s", got.Task.ID, task.ID)
	}

	cancelResp, err := http.Post(ts.URL+"/tasks/"+task.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusAccepted {
		t.Errorf("cancel status = %d, want 202", cancelResp.StatusCode)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	if code := getJSON(t, ts.URL+"/tasks/nonexistent", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}
