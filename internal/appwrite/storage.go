package appwrite

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/hitoshi/clip/internal/model"
)

// fileResponse はAppwriteのFileオブジェクトのうち使用するフィールド。
type fileResponse struct {
	ID       string `json:"$id"`
	BucketID string `json:"bucketId"`
}

// Storage はStorage APIをmedia.BlobStoreとして公開するアダプタ。
type Storage struct {
	client *Client
}

// NewStorage はStorageを生成する。
func NewStorage(client *Client) *Storage {
	return &Storage{client: client}
}

// CreateFile はファイルをアップロードし、保存されたファイルIDを返す。
// POST /storage/buckets/{bucketId}/files
func (s *Storage) CreateFile(ctx context.Context, bucketID, fileID string, up model.Upload) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("fileId", fileID); err != nil {
		return "", fmt.Errorf("failed to write fileId field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	h.Set("Content-Type", up.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var f fileResponse
	err = s.client.do(ctx, request{
		op:          "storage.createFile",
		method:      http.MethodPost,
		path:        fmt.Sprintf("/storage/buckets/%s/files", url.PathEscape(bucketID)),
		auth:        authKey,
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, &f)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

// FileViewURL はファイルを表示するための公開URLを返す。
func (s *Storage) FileViewURL(bucketID, fileID string) string {
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		s.client.config.Endpoint,
		url.PathEscape(bucketID),
		url.PathEscape(fileID),
		url.QueryEscape(s.client.config.ProjectID),
	)
}
