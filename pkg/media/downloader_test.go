package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/logger"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("attachment body"))
	}))
	defer srv.Close()

	dest := t.TempDir()
	d, err := NewDownloader(dest, logger.Default())
	if err != nil {
		t.Fatal(err)
	}

	path, err := d.Download(context.Background(), api.Attachment{URL: srv.URL + "/files/pic", Name: "pic.png"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "pic.png" {
		t.Errorf("saved as %v", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "attachment body" {
		t.Errorf("content = %q", data)
	}
}

func TestDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, err := NewDownloader(t.TempDir(), logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Download(context.Background(), api.Attachment{URL: srv.URL + "/gone"}); err == nil {
		t.Fatal("expected an error for a missing attachment")
	}
}
