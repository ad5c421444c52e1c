package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/hitoshi/clip/internal/model"
)

// URLChecker はリクエスト前のURL検証を行う。
type URLChecker interface {
	CheckURL(rawURL string) error
}

// Importer は外部URLの画像を取得してUploaderに渡す。
// ローンチイベントやキャンペーンで画像URLが指定された場合に使う。
type Importer struct {
	client   *http.Client
	checker  URLChecker
	uploader *Uploader
	logger   *slog.Logger
}

// NewImporter はImporterを生成する。
// clientにはSSRF対策済みのHTTPクライアントを渡すこと。
func NewImporter(client *http.Client, checker URLChecker, uploader *Uploader, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client:   client,
		checker:  checker,
		uploader: uploader,
		logger:   logger,
	}
}

// Fetch は画像を取得する。サイズ上限を超えるレスポンスは途中で打ち切る。
func (i *Importer) Fetch(ctx context.Context, rawURL string) (*model.Upload, error) {
	if err := i.checker.CheckURL(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrURLRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/gif, image/webp")
	req.Header.Set("User-Agent", "CLIP/1.0")

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("image fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	limit := i.uploader.maxSize
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	return &model.Upload{
		Filename:    name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Import は画像を取得して保存し、表示用URLを返す。
func (i *Importer) Import(ctx context.Context, rawURL string) (string, error) {
	up, err := i.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return i.uploader.Upload(ctx, up)
}

// Resolve はフォームで添付された画像か画像URLのどちらかを保存し、表示用URLを返す。
// 添付を優先する。保存先が未設定の場合はstored=falseとし、URL指定であれば元のURLをそのまま返す。
func (i *Importer) Resolve(ctx context.Context, up *model.Upload, rawURL string) (url string, stored bool, err error) {
	switch {
	case up != nil:
		url, err = i.uploader.Upload(ctx, up)
		if errors.Is(err, ErrNotConfigured) {
			return "", false, nil
		}
	case rawURL != "":
		if err := i.checker.CheckURL(rawURL); err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrURLRejected, err)
		}
		if i.uploader.store == nil || i.uploader.bucketID == "" {
			return rawURL, false, nil
		}
		url, err = i.Import(ctx, rawURL)
	default:
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}
