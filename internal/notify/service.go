// Package notify delivers extraction lifecycle events to a webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Event is one webhook payload.
type Event struct {
	Type         string    `json:"type"`
	SourceID     string    `json:"sourceId"`
	ExtractionID string    `json:"extractionId,omitempty"`
	Found        bool      `json:"found"`
	RootCount    int       `json:"rootCount"`
	CommentCount int       `json:"commentCount"`
	CacheHit     bool      `json:"cacheHit"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Service posts events as JSON to a configured webhook URL.
type Service struct {
	url    string
	client *http.Client
}

// NewService creates a webhook notifier. An empty URL disables delivery.
func NewService(url string) *Service {
	return &Service{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured returns true if a webhook URL is set.
func (s *Service) IsConfigured() bool {
	return s.url != ""
}

// ExtractionCompleted delivers an extraction.completed event in the
// background. Failures are logged, never propagated.
func (s *Service) ExtractionCompleted(ev Event) {
	if !s.IsConfigured() {
		return
	}
	ev.Type = "extraction.completed"
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	go func() {
		if err := s.deliver(ev); err != nil {
			log.Printf("notify: webhook delivery failed: %v", err)
		}
	}()
}

func (s *Service) deliver(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", s.url, resp.StatusCode)
	}
	return nil
}
