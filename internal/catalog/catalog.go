// Package catalog persists uploaded documents and their chunks in SQLite.
// It is the source of truth the vector index is rebuilt from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docqa/internal/domain"
)

// DocumentRecord is a row of the documents table.
type DocumentRecord struct {
	ID         uint      `gorm:"primaryKey"`
	DocumentID string    `gorm:"size:36;uniqueIndex;not null"`
	Filename   string    `gorm:"size:255;not null"`
	Content    string    `gorm:"not null"`
	FileType   string    `gorm:"size:50;not null"`
	UploadDate time.Time `gorm:"index"`
}

func (DocumentRecord) TableName() string { return "documents" }

// ChunkRecord is a row of the document_chunks table. Embedding holds the
// vector as little-endian float32 values, or NULL when none was stored.
type ChunkRecord struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID string `gorm:"size:36;index;not null"`
	ChunkIndex int    `gorm:"not null"`
	Text       string `gorm:"not null"`
	PageNumber *int
	Embedding  []byte
}

func (ChunkRecord) TableName() string { return "document_chunks" }

type Catalog struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. Use ":memory:" for a throwaway catalog.
func Open(path string) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if err := db.AutoMigrate(&DocumentRecord{}, &ChunkRecord{}); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocument stores doc and its chunks in one transaction.
func (c *Catalog) CreateDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	rec := DocumentRecord{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Content:    doc.Content,
		FileType:   doc.FileType,
		UploadDate: doc.UploadedAt,
	}
	rows := make([]ChunkRecord, len(chunks))
	for i, ch := range chunks {
		rows[i] = ChunkRecord{
			DocumentID: doc.ID,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			PageNumber: ch.PageNumber,
			Embedding:  FloatsToBytes(ch.Embedding),
		}
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
			return fmt.Errorf("insert chunks of %s: %w", doc.ID, err)
		}
		return nil
	})
}

// ListDocuments returns all documents in upload order without their content.
func (c *Catalog) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var recs []DocumentRecord
	err := c.db.WithContext(ctx).Omit("content").Order("upload_date asc, id asc").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}

// GetDocument returns the document with its content or domain.ErrNotFound.
func (c *Catalog) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var rec DocumentRecord
	err := c.db.WithContext(ctx).Where("document_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, err
	}
	return rec.toDomain(), nil
}

// DocumentChunks returns the chunks of one document ordered by chunk index.
func (c *Catalog) DocumentChunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	doc, err := c.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	var recs []ChunkRecord
	if err := c.db.WithContext(ctx).Where("document_id = ?", id).Order("chunk_index asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, len(recs))
	for i, r := range recs {
		out[i] = domain.Chunk{
			DocumentID: r.DocumentID,
			Filename:   doc.Filename,
			Index:      r.ChunkIndex,
			Text:       r.Text,
			PageNumber: r.PageNumber,
			Embedding:  BytesToFloats(r.Embedding),
		}
	}
	return out, nil
}

// DeleteDocument removes a document and its chunks. It returns
// domain.ErrNotFound when no such document exists.
func (c *Catalog) DeleteDocument(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("document_id = ?", id).Delete(&DocumentRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return tx.Where("document_id = ?", id).Delete(&ChunkRecord{}).Error
	})
}

type chunkRow struct {
	DocumentID string
	Filename   string
	ChunkIndex int
	Text       string
	PageNumber *int
	Embedding  []byte
}

// AllChunks returns every stored chunk ordered by document upload and chunk
// index.
func (c *Catalog) AllChunks(ctx context.Context) ([]domain.Chunk, error) {
	var rows []chunkRow
	err := c.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.document_id, documents.filename, document_chunks.chunk_index, document_chunks.text, document_chunks.page_number, document_chunks.embedding").
		Joins("JOIN documents ON documents.document_id = document_chunks.document_id").
		Order("documents.upload_date asc, documents.id asc, document_chunks.chunk_index asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, len(rows))
	for i, r := range rows {
		out[i] = domain.Chunk{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Index:      r.ChunkIndex,
			Text:       r.Text,
			PageNumber: r.PageNumber,
			Embedding:  BytesToFloats(r.Embedding),
		}
	}
	return out, nil
}

// SetEmbeddings stores vectors for chunks that were saved without one.
// Chunks are matched by document id and chunk index.
func (c *Catalog) SetEmbeddings(ctx context.Context, chunks []domain.Chunk) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ch := range chunks {
			err := tx.Model(&ChunkRecord{}).
				Where("document_id = ? AND chunk_index = ?", ch.DocumentID, ch.Index).
				Update("embedding", FloatsToBytes(ch.Embedding)).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r DocumentRecord) toDomain() domain.Document {
	return domain.Document{
		ID:         r.DocumentID,
		Filename:   r.Filename,
		FileType:   r.FileType,
		Content:    r.Content,
		UploadedAt: r.UploadDate,
	}
}
