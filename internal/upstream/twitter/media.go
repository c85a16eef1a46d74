package twitter

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
)

// FileStore returns the bytes of a previously uploaded file, or nil when the
// file does not exist.
type FileStore interface {
	GetFileContent(ctx context.Context, path string) ([]byte, error)
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
}

// MimeTypeFor infers the upload MIME type from the file extension,
// defaulting to image/jpeg.
func MimeTypeFor(filePath string) string {
	if mt, ok := mimeByExt[strings.ToLower(path.Ext(filePath))]; ok {
		return mt
	}
	return "image/jpeg"
}

func mediaCategory(mimeType string) string {
	switch {
	case mimeType == "image/gif":
		return "tweet_gif"
	case strings.HasPrefix(mimeType, "video/"):
		return "tweet_video"
	default:
		return "tweet_image"
	}
}

// attachMedia uploads the file at mediaPath and returns its media ID. An empty
// ID with nil error means the bytes were unavailable and the post should go
// out as text only.
func (c *Client) attachMedia(ctx context.Context, mediaPath string) (string, error) {
	if c.files == nil {
		c.logger.Warn("no file store configured, posting without media", "media_path", mediaPath)
		return "", nil
	}
	data, err := c.files.GetFileContent(ctx, mediaPath)
	if err != nil {
		c.logger.Warn("failed to read media, posting without it", "media_path", mediaPath, "error", err)
		return "", nil
	}
	if len(data) == 0 {
		c.logger.Warn("media not found, posting without it", "media_path", mediaPath)
		return "", nil
	}
	return c.UploadMedia(ctx, path.Base(mediaPath), MimeTypeFor(mediaPath), data)
}

// UploadMedia performs a one-shot multipart upload and returns the media ID.
func (c *Client) UploadMedia(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.WriteField("media_category", mediaCategory(mimeType)); err != nil {
		return "", err
	}
	if err := mw.WriteField("media_type", mimeType); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/media/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.send(req, &resp); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("upload media: empty media id in response")
	}
	return resp.Data.ID, nil
}
