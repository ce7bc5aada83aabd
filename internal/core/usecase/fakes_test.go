package usecase

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mshevelev/docvault/internal/core/domain"
	"github.com/mshevelev/docvault/internal/core/ports"
)

// In-memory collaborators with the same atomicity contracts as the real
// adapters, so coordinator and orchestrator behavior is testable under
// concurrency without a database.

type memContentRepo struct {
	mu          sync.Mutex
	recs        map[string]*domain.ContentRecord
	maxTextLen  int
	createCalls int
	getErr      error
	createErr   error
	updateErr   error
}

func newMemContentRepo() *memContentRepo {
	return &memContentRepo{recs: make(map[string]*domain.ContentRecord), maxTextLen: 1 << 20}
}

func (r *memContentRepo) GetByDigest(_ context.Context, digest string) (*domain.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.recs[digest]
	if !ok {
		return nil, domain.WrapError(domain.ErrContentNotFound, "get content", domain.ErrContentNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memContentRepo) CreateIfAbsent(_ context.Context, rec *domain.ContentRecord) (*domain.ContentRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, false, r.createErr
	}
	r.createCalls++
	if existing, ok := r.recs[rec.Digest]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *rec
	r.recs[rec.Digest] = &cp
	out := cp
	return &out, true, nil
}

func (r *memContentRepo) UpdateParseResult(_ context.Context, digest string, status domain.ParseStatus, text *string, parseErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	rec, ok := r.recs[digest]
	if !ok {
		return domain.WrapError(domain.ErrContentNotFound, "update parse result", domain.ErrContentNotFound)
	}
	rec.ParseStatus = status
	rec.ParseError = parseErr
	rec.ParsedText = nil
	if text != nil {
		truncated := domain.TruncateParsedText(*text, r.maxTextLen)
		rec.ParsedText = &truncated
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memContentRepo) ListStalePending(_ context.Context, olderThan time.Duration, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var digests []string
	for digest, rec := range r.recs {
		if rec.ParseStatus == domain.ParsePending && rec.UpdatedAt.Before(cutoff) {
			digests = append(digests, digest)
		}
	}
	sort.Strings(digests)
	if limit > 0 && len(digests) > limit {
		digests = digests[:limit]
	}
	return digests, nil
}

func (r *memContentRepo) record(digest string) *domain.ContentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[digest]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (r *memContentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

type memAttachmentRepo struct {
	mu        sync.Mutex
	atts      map[string]*domain.Attachment
	attachErr error
}

func newMemAttachmentRepo() *memAttachmentRepo {
	return &memAttachmentRepo{atts: make(map[string]*domain.Attachment)}
}

func (r *memAttachmentRepo) Attach(_ context.Context, att *domain.Attachment, force bool) (*domain.Attachment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return nil, false, r.attachErr
	}
	if !force {
		for _, existing := range r.atts {
			if !existing.Removed && existing.ContainerID == att.ContainerID && existing.Digest == att.Digest {
				cp := *existing
				return &cp, true, nil
			}
		}
	}
	cp := *att
	r.atts[att.ID] = &cp
	out := cp
	return &out, false, nil
}

func (r *memAttachmentRepo) GetByID(_ context.Context, id string) (*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.atts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAttachmentNotFound, "get attachment", domain.ErrAttachmentNotFound)
	}
	cp := *att
	return &cp, nil
}

func (r *memAttachmentRepo) ListByContainer(_ context.Context, containerID string, includeRemoved bool) ([]domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Attachment
	for _, att := range r.atts {
		if att.ContainerID != containerID {
			continue
		}
		if att.Removed && !includeRemoved {
			continue
		}
		out = append(out, *att)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memAttachmentRepo) UpdateMetadata(_ context.Context, id string, update domain.MetadataUpdate) (*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.atts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAttachmentNotFound, "update attachment", domain.ErrAttachmentNotFound)
	}
	if update.DisplayName != nil {
		att.DisplayName = *update.DisplayName
	}
	if update.Notes != nil {
		att.Notes = *update.Notes
	}
	if update.Tags != nil {
		att.Tags = append([]string(nil), update.Tags...)
	}
	att.UpdatedAt = time.Now().UTC()
	cp := *att
	return &cp, nil
}

func (r *memAttachmentRepo) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.atts[id]
	if !ok {
		return domain.WrapError(domain.ErrAttachmentNotFound, "remove attachment", domain.ErrAttachmentNotFound)
	}
	att.Removed = true
	att.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memAttachmentRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, att := range r.atts {
		if !att.Removed {
			n++
		}
	}
	return n
}

type memBlobStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	putCalls int
	putErr   error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.putCalls++
	s.blobs[key] = raw
	return nil
}

func (s *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.blobs[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrContentNotFound, "get blob", domain.ErrContentNotFound)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memBlobStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCalls
}

type recordingScheduler struct {
	mu      sync.Mutex
	digests []string
	err     error
}

func (s *recordingScheduler) Schedule(_ context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.digests = append(s.digests, digest)
	return nil
}

func (s *recordingScheduler) scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.digests...)
}

type parseServiceFake struct {
	mu          sync.Mutex
	states      []ports.ParseJobState
	result      string
	submitErr   error
	pollErr     error
	fetchErr    error
	submitCalls int
	pollCalls   int
	pollGate    chan struct{}
}

func (f *parseServiceFake) Submit(_ context.Context, content io.Reader, _ string) (string, error) {
	_, _ = io.ReadAll(content)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitCalls++
	return "job-1", nil
}

func (f *parseServiceFake) PollStatus(_ context.Context, _ string) (ports.ParseJobState, error) {
	if f.pollGate != nil {
		<-f.pollGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return "", f.pollErr
	}
	f.pollCalls++
	if len(f.states) == 0 {
		return ports.ParseJobPending, nil
	}
	state := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return state, nil
}

func (f *parseServiceFake) FetchResult(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.result, nil
}

func (f *parseServiceFake) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}
