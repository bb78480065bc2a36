package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, server
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestListChildren(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("path = %s, want /files", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}

		q := r.URL.Query()
		if got := q.Get("q"); got != "'folder-1' in parents and trashed=false" {
			t.Errorf("filter = %q", got)
		}
		if got := q.Get("pageSize"); got != "50" {
			t.Errorf("pageSize = %q, want 50", got)
		}
		if got := q.Get("pageToken"); got != "tok-1" {
			t.Errorf("pageToken = %q, want tok-1", got)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"nextPageToken": "tok-2",
			"files": []map[string]any{
				{"id": "f1", "name": "a.txt", "mimeType": "text/plain", "size": "12"},
				{"id": "f2", "name": "sub", "mimeType": domain.MimeFolder},
			},
		})
	})

	items, token, err := c.ListChildren(context.Background(), domain.ListQuery{
		FolderID:  "folder-1",
		PageSize:  50,
		PageToken: "tok-1",
		OrderBy:   "folder,name",
	})
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if token != "tok-2" {
		t.Errorf("token = %q, want tok-2", token)
	}
	if !items[1].IsFolder() {
		t.Error("second item should be a folder")
	}
}

func TestGetFile_NotFoundMapsToAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    404,
				"message": "File not found: abc",
				"errors":  []map[string]any{{"reason": "notFound"}},
			},
		})
	})

	_, err := c.GetFile(context.Background(), "abc", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != 404 || apiErr.Reason != "notFound" {
		t.Errorf("got %+v, want status 404 reason notFound", apiErr)
	}
}

func TestClient_RetryAfterCaptured(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, _, err := c.ListChildren(context.Background(), domain.ListQuery{FolderID: "x", PageSize: 10})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != 429 {
		t.Errorf("status = %d, want 429", apiErr.StatusCode)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %v, want 7s", apiErr.RetryAfter)
	}
	if apiErr.RetryAfterHint() != 7*time.Second {
		t.Errorf("hint = %v, want 7s", apiErr.RetryAfterHint())
	}
}

func TestDownload(t *testing.T) {
	content := []byte("hello media")
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("alt"); got != "media" {
			t.Errorf("alt = %q, want media", got)
		}
		_, _ = w.Write(content)
	})

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "f1", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(content)) || buf.String() != string(content) {
		t.Errorf("got %d bytes %q", n, buf.String())
	}
}

func TestExport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/doc-1/export" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("mimeType"); got != "application/pdf" {
			t.Errorf("mimeType = %q", got)
		}
		_, _ = w.Write([]byte("%PDF-"))
	})

	var buf bytes.Buffer
	if _, err := c.Export(context.Background(), "doc-1", "application/pdf", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
}
