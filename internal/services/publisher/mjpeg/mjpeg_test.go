package mjpeg

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crowdwatch-worker-go/internal/models"
)

func fakeEncoder(frame *models.Frame, _ int) ([]byte, error) {
	if len(frame.Data) == 0 {
		return nil, errors.New("empty frame")
	}
	return append([]byte("JPEG:"), frame.Data...), nil
}

func TestPublishFrameKeepsLatest(t *testing.T) {
	p := NewPublisherWithEncoder(90, fakeEncoder)

	if err := p.PublishFrame(nil); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishFrame(&models.Frame{Data: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishFrame(&models.Frame{Data: []byte("b")}); err != nil {
		t.Fatal(err)
	}
	if got := string(p.latest()); got != "JPEG:b" {
		t.Fatalf("latest = %q", got)
	}
	if err := p.PublishFrame(&models.Frame{}); err == nil {
		t.Fatal("expected encoder error")
	}

	p.Clear()
	if p.latest() != nil {
		t.Fatal("Clear did not drop the frame")
	}
}

func TestStreamMJPEGHTTP(t *testing.T) {
	p := NewPublisherWithEncoder(90, fakeEncoder)
	if err := p.PublishFrame(&models.Frame{Data: []byte("first")}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(p.StreamMJPEGHTTP))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); line != "--frame\r\n" {
		t.Fatalf("boundary line = %q", line)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}
	body := make([]byte, len("JPEG:first"))
	if _, err := io.ReadFull(reader, body); err != nil {
		t.Fatal(err)
	}
	if string(body) != "JPEG:first" {
		t.Fatalf("part body = %q", body)
	}
}
