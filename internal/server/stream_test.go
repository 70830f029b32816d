package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/camgestures/internal/capture"
)

func TestStreamHandler(t *testing.T) {
	preview := capture.NewPreview()
	ts := httptest.NewServer(NewStreamHandler(preview))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	for i, frame := range []string{"first", "second"} {
		preview.Set([]byte(frame))

		var header strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("frame %d: read header: %v", i, err)
			}
			if line == "\r\n" {
				break
			}
			header.WriteString(line)
		}
		want := fmt.Sprintf("Content-Length: %d", len(frame))
		if !strings.Contains(header.String(), want) {
			t.Errorf("frame %d header = %q, want %q", i, header.String(), want)
		}

		body := make([]byte, len(frame))
		if _, err := io.ReadFull(r, body); err != nil {
			t.Fatalf("frame %d: read body: %v", i, err)
		}
		if string(body) != frame {
			t.Errorf("frame %d = %q, want %q", i, body, frame)
		}
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(capture.NewPreview()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
