package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

const documentColumns = `id, title, content, content_hash, language, category, created_at, updated_at`

func (c *Client) InsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO knowledge_documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.Title,
		doc.Content,
		doc.ContentHash,
		doc.Language,
		doc.Category,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("category", doc.Category))
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM knowledge_documents WHERE id = ?`, id)
	return scanDocumentRow(row)
}

func (c *Client) GetDocumentByHash(ctx context.Context, contentHash string) (*models.KnowledgeDocument, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM knowledge_documents WHERE content_hash = ?`, contentHash)
	return scanDocumentRow(row)
}

// ListDocuments filters by language and category; empty values match all.
func (c *Client) ListDocuments(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM knowledge_documents
		WHERE (? = '' OR language = ?) AND (? = '' OR category = ?)
		ORDER BY created_at, id`,
		language, language, category, category,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return docs, nil
}

func (c *Client) UpdateDocumentContent(ctx context.Context, id, content, contentHash string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_documents SET content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
		content, contentHash, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return expectAffected(res)
}

// DeleteDocument removes the document; its chunks cascade.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return expectAffected(res)
}

func (c *Client) ReplaceChunks(ctx context.Context, docID string, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, doc_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, docID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func (c *Client) GetChunks(ctx context.Context, docID string) ([]models.DocumentChunk, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, doc_id, chunk_index, text, created_at FROM document_chunks WHERE doc_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.DocID, &ch.ChunkIndex, &ch.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return chunks, nil
}

func scanDocumentRow(row *sql.Row) (*models.KnowledgeDocument, error) {
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func scanDocument(row rowScanner) (*models.KnowledgeDocument, error) {
	var doc models.KnowledgeDocument
	var createdAt, updatedAt int64

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Content,
		&doc.ContentHash,
		&doc.Language,
		&doc.Category,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}
