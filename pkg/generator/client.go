// Package generator is the HTTP client for the external generation service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/genflowhq/genflow/pkg/models"
)

const (
	defaultRequestTimeout = 3 * time.Minute
	maxResponseBodySize   = 4 * 1024 * 1024 // 4MB
)

// ErrStepFailed is returned when the service reports a failed generation.
var ErrStepFailed = errors.New("generation step failed")

// Request is the step invocation contract.
type Request struct {
	Step           string         `json:"step"`
	SubmissionID   string         `json:"submission_id"`
	Inputs         models.Inputs  `json:"inputs"`
	PreviousOutput map[string]any `json:"previous_output,omitempty"`
}

// Response is the raw service answer. Payload is untyped on purpose: the
// pipeline normalizer unwraps whatever envelope the service used.
type Response struct {
	Status  string `json:"status"`
	Payload any    `json:"payload"`
	Error   string `json:"error,omitempty"`
}

// Client invokes one generation step at a time. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the generation service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// Generate runs one step against the external service and returns its raw
// payload. A failed status, a non-2xx response or a contract violation all
// surface as errors caught at the step boundary.
func (c *Client) Generate(ctx context.Context, req Request) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request for step %s failed: %w", req.Step, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generation service returned %d for step %s", resp.StatusCode, req.Step)
	}

	if err := validateResponse(data); err != nil {
		return nil, fmt.Errorf("generation response for step %s violates contract: %w", req.Step, err)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	if decoded.Status == "failed" {
		if decoded.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrStepFailed, decoded.Error)
		}

		return nil, ErrStepFailed
	}

	return decoded.Payload, nil
}

func validateResponse(data []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(responseSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(violations, "; "))
	}

	return nil
}
