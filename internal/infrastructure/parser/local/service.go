// Package local is an in-process ParseService for deployments without the
// remote provider. Extraction happens at submit time; the job table only
// exists to honor the submit/poll/fetch contract the orchestrator drives.
package local

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/mshevelev/docvault/internal/core/ports"
)

type job struct {
	state ports.ParseJobState
	text  string
	err   string
}

type Service struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func New() *Service {
	return &Service{jobs: make(map[string]*job)}
}

func (s *Service) Submit(_ context.Context, content io.Reader, mimeType string) (string, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}

	id := uuid.NewString()
	j := &job{}
	if text, err := extractText(raw, mimeType); err != nil {
		j.state = ports.ParseJobError
		j.err = err.Error()
	} else {
		j.state = ports.ParseJobSuccess
		j.text = text
	}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()
	return id, nil
}

func (s *Service) PollStatus(_ context.Context, jobHandle string) (ports.ParseJobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobHandle]
	if !ok {
		return "", fmt.Errorf("unknown parse job %s", jobHandle)
	}
	return j.state, nil
}

func (s *Service) FetchResult(_ context.Context, jobHandle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobHandle]
	if !ok {
		return "", fmt.Errorf("unknown parse job %s", jobHandle)
	}
	if j.state != ports.ParseJobSuccess {
		return "", fmt.Errorf("parse job %s has no result: %s", jobHandle, j.err)
	}
	return j.text, nil
}
