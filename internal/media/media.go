// Package media は画像のアップロードとURLからの取り込みを提供する。
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/clip/internal/model"
)

var (
	// ErrNotConfigured は保存先バケットが設定されていないことを示す。
	ErrNotConfigured = errors.New("image bucket is not configured")
	// ErrUnsupportedType は許可されていない形式の画像であることを示す。
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge は画像サイズが上限を超えていることを示す。
	ErrTooLarge = errors.New("image is too large")
	// ErrEmpty は画像データが空であることを示す。
	ErrEmpty = errors.New("image is empty")
	// ErrURLRejected は画像URLが取得対象として許可されないことを示す。
	ErrURLRejected = errors.New("image URL rejected")
	// ErrFetchFailed は画像URLから画像を取得できなかったことを示す。
	ErrFetchFailed = errors.New("failed to fetch image")
)

// allowedTypes は受け付ける画像形式と拡張子。
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// BlobStore は画像ファイルの保存先。
type BlobStore interface {
	CreateFile(ctx context.Context, bucketID, fileID string, up model.Upload) (string, error)
	FileViewURL(bucketID, fileID string) string
}

// Uploader は画像を検証してBlobStoreに保存し、公開URLを返す。
type Uploader struct {
	store    BlobStore
	bucketID string
	maxSize  int64
	logger   *slog.Logger
}

// NewUploader はUploaderを生成する。
func NewUploader(store BlobStore, bucketID string, maxSize int64, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:    store,
		bucketID: bucketID,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// Check は画像がアップロード可能かを検証し、内容から判定したContent-Typeを返す。
// クライアントが申告したContent-Typeは信用しない。
func (u *Uploader) Check(up *model.Upload) (string, error) {
	if up == nil || len(up.Data) == 0 {
		return "", ErrEmpty
	}
	if u.maxSize > 0 && int64(len(up.Data)) > u.maxSize {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(up.Data), u.maxSize)
	}
	ct := http.DetectContentType(up.Data)
	if _, ok := allowedTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return ct, nil
}

// Upload は画像を1件保存し、表示用URLを返す。
func (u *Uploader) Upload(ctx context.Context, up *model.Upload) (string, error) {
	if u.store == nil || u.bucketID == "" {
		return "", ErrNotConfigured
	}
	ct, err := u.Check(up)
	if err != nil {
		return "", err
	}

	fileID := uuid.New().String()
	stored := model.Upload{
		Filename:    fileName(up.Filename, fileID, ct),
		ContentType: ct,
		Data:        up.Data,
	}
	id, err := u.store.CreateFile(ctx, u.bucketID, fileID, stored)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	u.logger.Info("image uploaded",
		slog.String("file_id", id),
		slog.String("content_type", ct),
		slog.Int("size", len(up.Data)),
	)
	return u.store.FileViewURL(u.bucketID, id), nil
}

// UploadAll は複数の画像を並行して保存し、キーごとのURLを返す。
// nilの画像は無視する。1件でも失敗した場合は残りをキャンセルしてエラーを返す。
func (u *Uploader) UploadAll(ctx context.Context, uploads map[string]*model.Upload) (map[string]string, error) {
	type result struct {
		key string
		url string
	}

	pending := 0
	for _, up := range uploads {
		if up != nil {
			pending++
		}
	}
	results := make(chan result, pending)

	g, gctx := errgroup.WithContext(ctx)
	for key, up := range uploads {
		if up == nil {
			continue
		}
		g.Go(func() error {
			url, err := u.Upload(gctx, up)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			results <- result{key: key, url: url}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	urls := make(map[string]string, pending)
	for r := range results {
		urls[r.key] = r.url
	}
	return urls, nil
}

// fileName は保存用のファイル名を決める。元の名前が無い場合はIDと拡張子から作る。
func fileName(original, fileID, contentType string) string {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(original, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return fileID + allowedTypes[contentType]
	}
	return name
}
