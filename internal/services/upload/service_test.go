package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/detection"
	"crowdwatch-worker-go/internal/services/events"
	"crowdwatch-worker-go/internal/services/media"
)

type fakeFile struct {
	luminance []byte // per frame
	reads     []int
	mu        sync.Mutex
}

func (f *fakeFile) FrameCount() int { return len(f.luminance) }

func (f *fakeFile) ReadFrameAt(index int) (*models.Frame, error) {
	f.mu.Lock()
	f.reads = append(f.reads, index)
	f.mu.Unlock()
	v := f.luminance[index]
	return &models.Frame{Seq: uint64(index), Width: 1, Height: 1, Channels: 3, Data: []byte{v, v, v}}, nil
}

func (f *fakeFile) Close() error { return nil }

type fakeFileOpener struct {
	file *fakeFile
	err  error
}

func (o *fakeFileOpener) OpenFile(context.Context, string) (media.FileHandle, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.file, nil
}

type countingDetector struct {
	counts []uint
	i      int
	mu     sync.Mutex
}

func (d *countingDetector) Ready() bool { return true }

func (d *countingDetector) Detect(context.Context, *models.Frame) (models.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.counts[d.i%len(d.counts)]
	d.i++
	return models.DetectionResult{PeopleCount: c, Confidence: 0.87}, nil
}

type alertSink struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
}

func (a *alertSink) Dispatch(ev models.AlertEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, ev)
	return true
}

func waitDone(t *testing.T, s *Service, id string) models.UploadJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == models.UploadDone || job.Status == models.UploadFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return models.UploadJob{}
}

func TestAnalyzeFile(t *testing.T) {
	file := &fakeFile{luminance: []byte{80, 80, 80, 80, 80, 80, 80, 80, 80, 80}}
	det := &countingDetector{counts: []uint{4, 25, 9}}
	sink := &alertSink{}
	hub := events.NewHub(64)
	sub, cancel := hub.Subscribe()
	defer cancel()

	s := NewService(Options{SampleFrames: 3}, &fakeFileOpener{file: file}, det, sink, hub, func() bool { return true }, zerolog.Nop())
	defer s.Shutdown(context.Background())

	job, err := s.AnalyzeFile("/tmp/clip.mp4", "clip.mp4")
	if err != nil {
		t.Fatalf("AnalyzeFile() error = %v", err)
	}
	if job.ID == "" || job.Status != models.UploadPending {
		t.Fatalf("job = %+v", job)
	}

	done := waitDone(t, s, job.ID)
	if done.Status != models.UploadDone || done.Progress != 100 {
		t.Fatalf("job = %+v", done)
	}
	if done.Result == nil || done.Result.PeopleCount != 25 || !done.Result.IsCrowded {
		t.Fatalf("result = %+v", done.Result)
	}

	file.mu.Lock()
	reads := append([]int(nil), file.reads...)
	file.mu.Unlock()
	if len(reads) != 3 || reads[0] != 0 || reads[1] != 3 || reads[2] != 6 {
		t.Fatalf("sampled frames %v", reads)
	}

	sink.mu.Lock()
	if len(sink.alerts) != 1 || sink.alerts[0].Source != models.AlertSourceUpload || sink.alerts[0].SessionID != job.ID {
		t.Fatalf("alerts = %+v", sink.alerts)
	}
	sink.mu.Unlock()

	sawUpload := false
	for !sawUpload {
		select {
		case ev := <-sub:
			sawUpload = ev.Type == events.TypeUpload
		default:
			t.Fatal("no upload event published")
		}
	}
}

func TestAnalyzeFileUploadCalibration(t *testing.T) {
	file := &fakeFile{luminance: []byte{90, 90, 90, 90}}
	det := detection.NewSimulated(detection.UploadCalibration, 0, 0)

	s := NewService(Options{SampleFrames: 4}, &fakeFileOpener{file: file}, det, nil, nil, nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	job, err := s.AnalyzeFile("/tmp/a.mp4", "a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	done := waitDone(t, s, job.ID)
	if done.Result == nil {
		t.Fatalf("job = %+v", done)
	}
	if c := done.Result.Confidence; c < 0.85 || c > 0.90 {
		t.Fatalf("confidence %v outside upload calibration", c)
	}
	if n := done.Result.PeopleCount; n < 5 || n > 54 {
		t.Fatalf("people count %d outside calibration", n)
	}
}

func TestAnalyzeFileAllBlank(t *testing.T) {
	file := &fakeFile{luminance: []byte{2, 3, 1}}
	s := NewService(Options{SampleFrames: 3}, &fakeFileOpener{file: file}, &countingDetector{counts: []uint{30}}, nil, nil, nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	job, err := s.AnalyzeFile("/tmp/dark.mp4", "dark.mp4")
	if err != nil {
		t.Fatal(err)
	}
	done := waitDone(t, s, job.ID)
	if done.Status != models.UploadFailed || done.Error == "" || done.Result != nil {
		t.Fatalf("job = %+v", done)
	}
}

func TestAnalyzeFileOpenError(t *testing.T) {
	opener := &fakeFileOpener{err: errors.New("not a video")}
	s := NewService(Options{SampleFrames: 3}, opener, &countingDetector{counts: []uint{1}}, nil, nil, nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	job, err := s.AnalyzeFile("/tmp/x.txt", "x.txt")
	if err != nil {
		t.Fatal(err)
	}
	if done := waitDone(t, s, job.ID); done.Status != models.UploadFailed {
		t.Fatalf("job = %+v", done)
	}
}

func TestAnalyzeFileValidation(t *testing.T) {
	s := NewService(Options{}, &fakeFileOpener{}, detection.NewSimulated(detection.UploadCalibration, 0, time.Hour), nil, nil, nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	if _, err := s.AnalyzeFile("", "x"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.AnalyzeFile("/tmp/x.mp4", "x"); !errors.Is(err, models.ErrDetectorNotReady) {
		t.Fatalf("err = %v, want ErrDetectorNotReady", err)
	}
	if _, err := s.Get("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSampleIndices(t *testing.T) {
	tests := []struct {
		total, n int
		want     []int
	}{
		{10, 5, []int{0, 2, 4, 6, 8}},
		{3, 5, []int{0, 1, 2}},
		{0, 5, nil},
		{7, 1, []int{0}},
	}
	for _, tt := range tests {
		got := sampleIndices(tt.total, tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("sampleIndices(%d,%d) = %v", tt.total, tt.n, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("sampleIndices(%d,%d) = %v", tt.total, tt.n, got)
			}
		}
	}
}

func TestFinishedJobsExpire(t *testing.T) {
	file := &fakeFile{luminance: []byte{80, 80, 80}}
	s := NewService(Options{SampleFrames: 1, RetainFor: time.Minute}, &fakeFileOpener{file: file},
		&countingDetector{counts: []uint{3}}, nil, nil, nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	var clockMu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	first, err := s.AnalyzeFile("/tmp/a.mp4", "a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if done := waitDone(t, s, first.ID); done.FinishedAt == nil {
		t.Fatalf("finished job without FinishedAt: %+v", done)
	}

	clockMu.Lock()
	now = now.Add(30 * time.Second)
	clockMu.Unlock()
	second, err := s.AnalyzeFile("/tmp/b.mp4", "b.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(first.ID); err != nil {
		t.Fatalf("job pruned inside its retention window: %v", err)
	}
	waitDone(t, s, second.ID)

	clockMu.Lock()
	now = now.Add(45 * time.Second)
	clockMu.Unlock()
	third, err := s.AnalyzeFile("/tmp/c.mp4", "c.mp4")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(first.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expired job err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(second.ID); err != nil {
		t.Fatalf("second job pruned early: %v", err)
	}
	if _, err := s.Get(third.ID); err != nil {
		t.Fatalf("new job missing: %v", err)
	}
}
