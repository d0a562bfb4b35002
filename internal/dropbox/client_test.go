package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/proffectiv/warrantyflow/internal/store"
)

type fakeDropbox struct {
	tokenCalls   atomic.Int64
	files        map[string][]byte
	lastUpload   []byte
	lastUplPath  string
	lastUplMode  string
	lastAuth     string
	downloadFail int
}

func (f *fakeDropbox) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			http.Error(w, "bad grant type", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   14400,
		})
	})

	mux.HandleFunc("/2/files/download", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		if f.downloadFail > 0 {
			f.downloadFail--
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		var arg struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, ok := f.files[arg.Path]
		if !ok {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error_summary": "path/not_found/..",
			})
			return
		}
		w.Write(data)
	})

	mux.HandleFunc("/2/files/upload", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastUplPath = arg.Path
		f.lastUplMode = arg.Mode
		f.lastUpload = body
		if f.files == nil {
			f.files = map[string][]byte{}
		}
		f.files[arg.Path] = body
		json.NewEncoder(w).Encode(map[string]any{"path_display": arg.Path})
	})

	return mux
}

func newTestClient(t *testing.T, fake *fakeDropbox) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 0
	retryClient.RetryWaitMax = 0
	retryClient.Logger = log.New(io.Discard, "", 0)

	return NewClient(
		Credentials{AppKey: "key", AppSecret: "secret", RefreshToken: "refresh"},
		WithEndpoints(server.URL, server.URL),
		WithHTTPClient(retryClient),
		WithLogger(log.New(io.Discard, "", 0)),
	)
}

func TestDownloadReturnsFileBytes(t *testing.T) {
	fake := &fakeDropbox{files: map[string][]byte{
		"/garantias/wb.xlsx": []byte("workbook-bytes"),
	}}
	client := newTestClient(t, fake)

	data, err := client.Download(context.Background(), "/garantias/wb.xlsx")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "workbook-bytes" {
		t.Fatalf("Download returned %q", data)
	}
	if fake.lastAuth != "Bearer test-token" {
		t.Fatalf("Authorization = %q", fake.lastAuth)
	}
}

func TestDownloadMissingFile(t *testing.T) {
	client := newTestClient(t, &fakeDropbox{})

	_, err := client.Download(context.Background(), "/garantias/none.xlsx")
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("Download = %v, want ErrPathNotFound", err)
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	fake := &fakeDropbox{
		files:        map[string][]byte{"/wb.xlsx": []byte("ok")},
		downloadFail: 1,
	}
	client := newTestClient(t, fake)

	data, err := client.Download(context.Background(), "/wb.xlsx")
	if err != nil {
		t.Fatalf("Download after transient failure: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("Download returned %q", data)
	}
}

func TestUploadOverwrites(t *testing.T) {
	fake := &fakeDropbox{}
	client := newTestClient(t, fake)

	if err := client.Upload(context.Background(), "/garantias/wb.xlsx", []byte("new-bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if fake.lastUplPath != "/garantias/wb.xlsx" {
		t.Errorf("upload path = %q", fake.lastUplPath)
	}
	if fake.lastUplMode != "overwrite" {
		t.Errorf("upload mode = %q, want overwrite", fake.lastUplMode)
	}
	if string(fake.lastUpload) != "new-bytes" {
		t.Errorf("upload body = %q", fake.lastUpload)
	}
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	fake := &fakeDropbox{files: map[string][]byte{"/wb.xlsx": []byte("x")}}
	client := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Download(ctx, "/wb.xlsx"); err != nil {
			t.Fatalf("Download %d: %v", i, err)
		}
	}

	if calls := fake.tokenCalls.Load(); calls != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", calls)
	}
}

func TestSourceMapsMissingFile(t *testing.T) {
	client := newTestClient(t, &fakeDropbox{})
	source := NewSource(client, "/garantias/wb.xlsx")

	_, err := source.Fetch(context.Background())
	if !errors.Is(err, store.ErrWorkbookMissing) {
		t.Fatalf("Fetch = %v, want store.ErrWorkbookMissing", err)
	}
}

func TestSourceRoundTrip(t *testing.T) {
	client := newTestClient(t, &fakeDropbox{})
	source := NewSource(client, "/garantias/wb.xlsx")
	ctx := context.Background()

	if err := source.Store(ctx, []byte("uploaded")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	data, err := source.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "uploaded" {
		t.Fatalf("Fetch returned %q", data)
	}
}
