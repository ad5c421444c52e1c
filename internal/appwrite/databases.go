package appwrite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/clip/internal/repository"
)

// documentResponse はAppwriteのDocumentオブジェクトのうち使用するフィールド。
type documentResponse struct {
	ID string `json:"$id"`
}

// Documents はDatabases APIをrepository.DocumentStoreとして公開するアダプタ。
type Documents struct {
	client *Client
}

// NewDocuments はDocumentsを生成する。
func NewDocuments(client *Client) *Documents {
	return &Documents{client: client}
}

// CreateDocument はドキュメントを作成し、そのIDを返す。documentIDが空ならAppwriteに採番させる。
// 同じIDのドキュメントがある場合（409）はrepository.ErrDuplicateDocumentでラップして返す。
// POST /databases/{databaseId}/collections/{collectionId}/documents
func (d *Documents) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error) {
	if documentID == "" {
		documentID = UniqueID
	}
	var doc documentResponse
	err := d.client.do(ctx, request{
		op:     "databases.createDocument",
		method: http.MethodPost,
		path: fmt.Sprintf("/databases/%s/collections/%s/documents",
			url.PathEscape(databaseID), url.PathEscape(collectionID)),
		auth: authKey,
		body: map[string]any{
			"documentId": documentID,
			"data":       data,
		},
	}, &doc)
	if pe, ok := AsError(err); ok && pe.Code == http.StatusConflict {
		return "", fmt.Errorf("%w: %w", repository.ErrDuplicateDocument, err)
	}
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}
