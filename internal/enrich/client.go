package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OCRRequest is the JSON request body for the OCR service.
type OCRRequest struct {
	Image              string `json:"image"`
	Language           string `json:"language,omitempty"`
	ExtractTables      bool   `json:"extract_tables,omitempty"`
	ExtractHandwriting bool   `json:"extract_handwriting,omitempty"`
}

// ExtractedData holds structured fields the OCR service pulled out of a
// document.
type ExtractedData struct {
	Dates          []string `json:"dates,omitempty"`
	Amounts        []string `json:"amounts,omitempty"`
	InvoiceNumbers []string `json:"invoice_numbers,omitempty"`
	Companies      []string `json:"companies,omitempty"`
}

// OCRResponse is the JSON response from the OCR service.
type OCRResponse struct {
	Success          bool           `json:"success"`
	Text             string         `json:"text"`
	Confidence       float64        `json:"confidence"`
	LanguageDetected string         `json:"language_detected,omitempty"`
	ProcessingTime   int64          `json:"processing_time"`
	ExtractedData    *ExtractedData `json:"extracted_data,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// OCRHealth is the OCR service health endpoint payload.
type OCRHealth struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	Device        string  `json:"device"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Client talks to the external OCR service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an OCR service client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze submits document bytes for text extraction. The language hint may
// be empty; the service detects the language itself then.
func (c *Client) Analyze(ctx context.Context, data []byte, language string) (*OCRResponse, error) {
	reqBody := OCRRequest{
		Image:         base64.StdEncoding.EncodeToString(data),
		Language:      language,
		ExtractTables: true,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	var out OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode OCR response: %w", err)
	}
	return &out, nil
}

// Health probes the OCR service health endpoint. Failures are reported as
// false, never as an error.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var h OCRHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return false
	}
	return h.Status == "healthy" && h.ModelLoaded
}
