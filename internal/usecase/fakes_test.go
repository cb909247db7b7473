package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

type fakeFeed struct {
	results []ports.SourceResult
}

func (f *fakeFeed) FetchAll(context.Context) []ports.SourceResult {
	return f.results
}

type sentPhoto struct {
	Target, Image, Caption string
}

type fakeTransport struct {
	mu         sync.Mutex
	photos     []sentPhoto
	messages   []string
	failPhoto  map[string]bool
	failPhotos bool
	failAll    bool
	failDigest bool
	failText   bool
	// digestLimit > 0 rejects digest parts after that many were accepted.
	digestLimit int
	digests     int
	afterPhoto  func()
}

var digestHeaderRe = regexp.MustCompile(`<i>\d+ stories`)

func isDigestText(text string) bool {
	return digestHeaderRe.MatchString(text)
}

func (t *fakeTransport) SendPhoto(_ context.Context, target, imageURL, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll || t.failPhotos || t.failPhoto[imageURL] {
		return errors.New("photo rejected")
	}
	t.photos = append(t.photos, sentPhoto{Target: target, Image: imageURL, Caption: caption})
	if t.afterPhoto != nil {
		t.afterPhoto()
	}
	return nil
}

func (t *fakeTransport) SendMessage(_ context.Context, _ string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll {
		return errors.New("chat unavailable")
	}
	if isDigestText(text) {
		if t.failDigest || (t.digestLimit > 0 && t.digests >= t.digestLimit) {
			return errors.New("message too long")
		}
		t.digests++
	} else if t.failText {
		return errors.New("chat unavailable")
	}
	t.messages = append(t.messages, text)
	return nil
}

func (t *fakeTransport) digestMessages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, m := range t.messages {
		if isDigestText(m) {
			out = append(out, m)
		}
	}
	return out
}

func (t *fakeTransport) sends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.photos) + len(t.messages)
}

// memStore is a CAS store that round-trips through JSON so callers never
// share maps or slices with the stored copy.
type memStore struct {
	mu       sync.Mutex
	payload  []byte
	saves    int
	conflict bool
}

func newMemStore(state domain.RunState) *memStore {
	raw, err := json.Marshal(state)
	if err != nil {
		panic(err)
	}
	return &memStore{payload: raw}
}

func (s *memStore) Load(context.Context) (domain.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return domain.NewRunState(), nil
	}
	var st domain.RunState
	if err := json.Unmarshal(s.payload, &st); err != nil {
		return domain.RunState{}, err
	}
	return st, nil
}

func (s *memStore) Save(_ context.Context, state domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current domain.RunState
	if s.payload != nil {
		if err := json.Unmarshal(s.payload, &current); err != nil {
			return err
		}
	}
	if s.conflict || current.Version != state.Version {
		return fmt.Errorf("version %d: %w", state.Version, domain.ErrStateConflict)
	}
	state.Version++
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.payload = raw
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) state() domain.RunState {
	st, _ := s.Load(context.Background())
	return st
}

type fakeImages struct {
	calls int
	url   string
	err   error
}

func (f *fakeImages) ArticleImage(context.Context, string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeSummarizer struct {
	text  string
	err   error
	items int
}

func (f *fakeSummarizer) Summarize(_ context.Context, items []domain.NewsItem) (string, error) {
	f.items = len(items)
	return f.text, f.err
}

type recordingObserver struct {
	reports []domain.CycleReport
	errs    []error
}

func (o *recordingObserver) ObserveCycle(report domain.CycleReport, err error) {
	o.reports = append(o.reports, report)
	o.errs = append(o.errs, err)
}
