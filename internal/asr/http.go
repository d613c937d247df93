package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yusinv/wyoming-giga-am-ctc/internal/audio"
)

// HTTPConfig contains configuration for the remote engine client.
type HTTPConfig struct {
	Endpoint         string
	APIKey           string
	Model            string
	DefaultLanguage  string
	Timeout          time.Duration
	MaxRetries       int
	MaxConcurrent    int
	MaxAudioDuration time.Duration
	Capabilities     Capabilities
}

// HTTPEngine sends utterances to a remote recognition endpoint. Concurrency
// across sessions is bounded by a semaphore so the remote service owns its
// queue rather than being flooded.
type HTTPEngine struct {
	config     HTTPConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64

	mu sync.RWMutex
}

// httpResponse is the JSON body returned by the transcription endpoint.
type httpResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
	Segments   []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		Confidence float32 `json:"confidence,omitempty"`
	} `json:"segments,omitempty"`
}

// EngineStats represents remote engine client statistics.
type EngineStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
	TotalRetries    uint64  `json:"total_retries"`
	ActiveRequests  int     `json:"active_requests"`
}

// NewHTTPEngine creates a remote engine client.
func NewHTTPEngine(config HTTPConfig) (*HTTPEngine, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if len(config.Capabilities.Models) == 0 {
		config.Capabilities = DefaultCapabilities()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPEngine{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe uploads one utterance as a WAV file and returns the recognized
// text. Zero-length audio short-circuits to an empty result without a network
// round trip.
func (e *HTTPEngine) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (*Result, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if e.config.MaxAudioDuration > 0 && format.Duration(len(pcm)) > e.config.MaxAudioDuration {
		return nil, fmt.Errorf("%w: %v exceeds %v",
			ErrAudioTooLong, format.Duration(len(pcm)), e.config.MaxAudioDuration)
	}
	if language == "" {
		language = e.config.DefaultLanguage
	}
	if len(pcm) == 0 {
		return &Result{Text: "", Language: language}, nil
	}

	// Bound concurrent uploads across all sessions
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	e.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.incrementTotalRetries()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := e.doRequest(ctx, pcm, format, language)
		if err == nil {
			e.incrementSuccessRequests()
			result.Duration = time.Since(start)
			return result, nil
		}

		lastErr = err
		if !e.isRetryableError(err) {
			break
		}
	}

	e.incrementFailedRequests()
	return nil, &EngineError{Err: fmt.Errorf("transcription failed after %d attempts: %w",
		e.config.MaxRetries+1, lastErr)}
}

// doRequest performs a single HTTP request to the transcription endpoint.
func (e *HTTPEngine) doRequest(ctx context.Context, pcm []byte, format audio.Format, language string) (*Result, error) {
	body, contentType, err := e.createMultipartRequest(pcm, format, language)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if e.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed httpResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	result := &Result{
		Text:       parsed.Text,
		Language:   parsed.Language,
		Confidence: parsed.Confidence,
	}
	if result.Language == "" {
		result.Language = language
	}
	for _, seg := range parsed.Segments {
		result.Segments = append(result.Segments, Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}

	return result, nil
}

// createMultipartRequest builds a multipart/form-data body with the utterance
// encoded as a WAV file plus request metadata fields.
func (e *HTTPEngine) createMultipartRequest(pcm []byte, format audio.Format, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	requestID := uuid.NewString()

	wav, err := audio.EncodeWAV(pcm, format)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode WAV: %w", err)
	}

	fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"request_id":  requestID,
		"sample_rate": fmt.Sprintf("%d", format.Rate),
		"channels":    fmt.Sprintf("%d", format.Channels),
		"duration":    fmt.Sprintf("%.3f", format.Duration(len(pcm)).Seconds()),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if language != "" {
		fields["language"] = language
	}
	if e.config.Model != "" {
		fields["model"] = e.config.Model
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError determines if an error is worth another attempt.
func (e *HTTPEngine) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors and rate limiting are retryable
	if strings.Contains(errStr, "HTTP error 5") || strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network-level failures are typically transient
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

// Capabilities returns the remote program and model description.
func (e *HTTPEngine) Capabilities() Capabilities {
	return e.config.Capabilities
}

func (e *HTTPEngine) incrementTotalRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests++
}

func (e *HTTPEngine) incrementSuccessRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successRequests++
}

func (e *HTTPEngine) incrementFailedRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedRequests++
}

func (e *HTTPEngine) incrementTotalRetries() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRetries++
}

// Stats returns current client statistics.
func (e *HTTPEngine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	successRate := float64(0)
	if e.totalRequests > 0 {
		successRate = float64(e.successRequests) / float64(e.totalRequests) * 100
	}

	return EngineStats{
		TotalRequests:   e.totalRequests,
		SuccessRequests: e.successRequests,
		FailedRequests:  e.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    e.totalRetries,
		ActiveRequests:  len(e.semaphore),
	}
}

// Close waits for all in-flight requests to complete.
func (e *HTTPEngine) Close() error {
	for i := 0; i < cap(e.semaphore); i++ {
		e.semaphore <- struct{}{}
	}
	return nil
}
