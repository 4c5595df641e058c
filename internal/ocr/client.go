package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ocrchat/internal/logger"
	"ocrchat/internal/models"
)

const (
	// DefaultTimeout matches the 100s the original webhook integration
	// allowed for slow OCR runs.
	DefaultTimeout = 100 * time.Second
	// DefaultMaxRetries is the webhook retry budget applied when the
	// configuration leaves it unset. Retries live here; the orchestrator
	// never adds its own.
	DefaultMaxRetries = 5

	// NoRetries disables the retry budget entirely.
	NoRetries = -1
)

var errMalformedResponse = errors.New("malformed extraction response")

// Client posts uploaded documents to the external OCR+AI webhook. The
// request carries two multipart parts: the binary file under "image" and
// a JSON-encoded array of key strings under "keys_to_extract".
type Client struct {
	httpClient *http.Client
	url        string
	maxRetries int
}

// extractionRecord is the webhook's response element. Only ai_response is
// consumed, but the full record is decoded to catch shape drift early.
type extractionRecord struct {
	HashKey       string          `json:"hash_key"`
	ExtractedText string          `json:"extracted_text"`
	KeysToExtract json.RawMessage `json:"keys_to_extract"`
	AIResponse    map[string]any  `json:"ai_response"`
	CreatedAt     string          `json:"created_at"`
}

func NewClient(webhookURL string, timeout time.Duration, maxRetries int) (*Client, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, errors.New("ocr: webhook url must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        webhookURL,
		maxRetries: maxRetries,
	}, nil
}

// Extract sends the stored file and key list to the webhook and returns
// the field-name to extracted-value mapping from the first response
// record. Transport errors, non-2xx statuses, and non-conforming bodies
// are treated uniformly as failure; each is retried up to the budget.
func (c *Client) Extract(ctx context.Context, in models.ExtractionInput, keys []string) (map[string]any, error) {
	body, contentType, err := c.buildRequestBody(in, keys)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.post(ctx, body, contentType)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"file":    in.FileName,
			"error":   err.Error(),
		}).Warn("extraction attempt failed")
	}
	return nil, fmt.Errorf("extract %s: %w", in.FileName, lastErr)
}

func (c *Client) buildRequestBody(in models.ExtractionInput, keys []string) ([]byte, string, error) {
	fileBytes, err := os.ReadFile(in.StoredPath)
	if err != nil {
		return nil, "", fmt.Errorf("read stored file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, in.FileName))
	header.Set("Content-Type", in.MediaType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return nil, "", fmt.Errorf("encode keys: %w", err)
	}
	if err := w.WriteField("keys_to_extract", string(keysJSON)); err != nil {
		return nil, "", fmt.Errorf("write keys part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}

	var records []extractionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if len(records) == 0 || records[0].AIResponse == nil {
		return nil, errMalformedResponse
	}
	return records[0].AIResponse, nil
}
