package supabase

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adi-253/chatsync/internal/models"
)

// Upload stores r at bucket/objectPath and returns the public URL of the
// object. An existing object at the same path is overwritten.
func (c *Client) Upload(ctx context.Context, bucket, objectPath string, r io.Reader, contentType string) (string, error) {
	objectPath = strings.TrimLeft(path.Clean("/"+objectPath), "/")
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, r)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	c.authorize(req)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", models.ErrTransport, objectPath, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", parseAPIError(resp.StatusCode, body)
	}

	c.log.Info().Str("bucket", bucket).Str("path", objectPath).Msg("media uploaded")
	return c.PublicURL(bucket, objectPath), nil
}

// PublicURL is the URL a public bucket serves objectPath from.
func (c *Client) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, strings.TrimLeft(objectPath, "/"))
}

// UploadFile uploads a local file to destPath in the configured media bucket.
func (c *Client) UploadFile(ctx context.Context, localPath, destPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	return c.Upload(ctx, c.bucket, destPath, f, mime.TypeByExtension(filepath.Ext(localPath)))
}
