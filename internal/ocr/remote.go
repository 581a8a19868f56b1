// remote.go - HTTP client for the external text-recognition service.

package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/configs"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ai"
	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
)

// RemoteClient posts label images to an OCR service and returns the
// recognized text. It implements ai.TextSource. OCR is best-effort here: a
// down or slow service yields empty text, not a failed scan.
type RemoteClient struct {
	endpoint string
	client   *http.Client
}

// NewRemoteClient builds the client from configuration. A nil return means
// no OCR service is configured.
func NewRemoteClient() *RemoteClient {
	endpoint := strings.TrimSpace(configs.OCR_SERVICE_URL)
	if endpoint == "" {
		return nil
	}

	timeout := time.Duration(configs.OCR_TIMEOUT) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// ExtractText sends one image and returns the recognized text, or empty on
// any failure.
func (c *RemoteClient) ExtractText(ctx context.Context, image ai.LabelImage, reqCtx *common.RequestContext) (string, error) {
	if c == nil || len(image.Data) == 0 {
		return "", nil
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "scan.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		reqCtx.LogWarning("OCR service unreachable: %v", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		reqCtx.LogWarning("OCR service returned status %d", resp.StatusCode)
		return "", nil
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		reqCtx.LogWarning("OCR service returned invalid JSON: %v", err)
		return "", nil
	}

	return strings.TrimSpace(payload.Text), nil
}
