package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/retry"
)

// speechClient talks to the OpenAI-compatible speech backend that
// serves both transcription and synthesis.
type speechClient struct {
	httpClient  *http.Client
	baseURL     string
	retryConfig retry.BackoffConfig
}

func newSpeechClient(baseURL string) *speechClient {
	return &speechClient{
		httpClient: &http.Client{
			Timeout: 35 * time.Second,
		},
		baseURL:     baseURL,
		retryConfig: retry.HTTPConfig(),
	}
}

// postJSONRaw posts a JSON payload and returns the raw response body,
// used for audio downloads.
func (c *speechClient) postJSONRaw(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var respBody []byte
	err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// postMultipart posts form fields plus one file and decodes the JSON
// response. The body is rebuilt on every retry attempt.
func (c *speechClient) postMultipart(ctx context.Context, endpoint string, fields map[string]string, fileField, fileName string, fileData []byte, response any) error {
	var respBody []byte

	err := retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		for key, val := range fields {
			if err := writer.WriteField(key, val); err != nil {
				return 0, fmt.Errorf("failed to write field %s: %w", key, err)
			}
		}
		if fileField != "" && fileData != nil {
			part, err := writer.CreateFormFile(fileField, fileName)
			if err != nil {
				return 0, fmt.Errorf("failed to create form file: %w", err)
			}
			if _, err := part.Write(fileData); err != nil {
				return 0, fmt.Errorf("failed to write file data: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			return 0, fmt.Errorf("failed to close multipart writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, &buf)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
