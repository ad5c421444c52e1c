// Package appwrite はAppwrite REST APIのクライアントを提供する。
// アカウント・セッション（Identity Provider）、Databases（Document Store）、
// Storage（Blob Store）のうち、このアプリケーションが使う操作だけを実装する。
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// UniqueID はサーバー側でIDを採番させる特殊値。
const UniqueID = "unique()"

// maxErrorBody はエラーレスポンスとして読み取る最大サイズ。
const maxErrorBody = 64 << 10

// Config はクライアントの接続設定。
type Config struct {
	Endpoint  string // 例: https://cloud.appwrite.io/v1
	ProjectID string
	APIKey    string
}

// Observer はAPI呼び出しの結果を受け取るフック。メトリクス収集に使う。
type Observer interface {
	ObserveProviderCall(operation string, duration time.Duration, err error)
}

// Client はAppwrite REST APIのクライアント。
// サーバー操作はAPIキー、ユーザースコープの操作はセッションsecretで認証する。
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
	observer   Observer
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, config Config, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
		logger:     logger,
	}
}

// SetObserver はAPI呼び出しのオブザーバーを設定する。
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Error はAppwriteが返したエラーレスポンス。
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("appwrite: %s (%d %s)", e.Message, e.Code, e.Type)
}

// AsError はerrの連鎖からAppwriteのエラーを取り出す。
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsUnauthorized はセッション切れや未ログインを示すエラーかを判定する。
func IsUnauthorized(err error) bool {
	ae, ok := AsError(err)
	return ok && ae.Code == http.StatusUnauthorized
}

// auth はリクエストの認証方法。
type auth int

const (
	authNone auth = iota
	authKey
	authSession
)

// request はAPI呼び出し1回分のパラメータ。
type request struct {
	op          string
	method      string
	path        string
	auth        auth
	secret      string
	body        any
	rawBody     io.Reader
	contentType string
}

// do はリクエストを送信し、成功時はレスポンスをoutにデコードする。
// outがnilの場合はボディを読み捨てる。
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveProviderCall(r.op, time.Since(start), err)
		}
	}()

	var body io.Reader
	contentType := r.contentType
	switch {
	case r.rawBody != nil:
		body = r.rawBody
	case r.body != nil:
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", r.op, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.config.Endpoint+r.path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", r.op, err)
	}
	req.Header.Set("X-Appwrite-Project", c.config.ProjectID)
	req.Header.Set("X-Appwrite-Response-Format", "1.5.0")
	req.Header.Set("User-Agent", "CLIP/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	switch r.auth {
	case authKey:
		req.Header.Set("X-Appwrite-Key", c.config.APIKey)
	case authSession:
		req.Header.Set("X-Appwrite-Session", r.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("appwrite request failed",
			slog.String("operation", r.op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.op, err)
	}
	return nil
}

// decodeError はエラーレスポンスをErrorに変換する。
// JSONでない場合はステータス行をメッセージとして使う。
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ae := &Error{}
	if err := json.Unmarshal(raw, ae); err != nil || ae.Message == "" {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	if ae.Code == 0 {
		ae.Code = resp.StatusCode
	}
	return ae
}
