package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresDocumentStore はPostgreSQLのjsonb列にドキュメントを保存するDocumentStore。
// セルフホスト環境でAppwrite Databasesの代わりに使う。
type PostgresDocumentStore struct {
	db *sql.DB
}

// NewPostgresDocumentStore はPostgresDocumentStoreを生成する。
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// CreateDocument はドキュメントを作成し、そのIDを返す。
// id列はUUIDのため、指定するdocumentIDもUUIDでなければならない。
func (s *PostgresDocumentStore) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	id := uuid.New().String()
	if documentID != "" {
		parsed, err := uuid.Parse(documentID)
		if err != nil {
			return "", fmt.Errorf("invalid document id %q: %w", documentID, err)
		}
		id = parsed.String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, database_id, collection_id, data, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		id, databaseID, collectionID, payload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrDuplicateDocument
		}
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// GetDocument は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (s *PostgresDocumentStore) GetDocument(ctx context.Context, databaseID, collectionID, id string) (map[string]any, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents
		 WHERE id = $1 AND database_id = $2 AND collection_id = $3`,
		id, databaseID, collectionID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return data, nil
}
