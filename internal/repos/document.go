package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type DocumentRepo interface {
	// ReplaceCollection atomically swaps the collection for the chunks'
	// (course_id, source_id) pair: the old collection and its chunks are
	// deleted and the new ones inserted inside one transaction.
	ReplaceCollection(ctx context.Context, tx *gorm.DB, collection *types.DocumentCollection, chunks []*types.DocumentChunk) error
	GetCollection(ctx context.Context, tx *gorm.DB, courseID, sourceID string) (*types.DocumentCollection, error)
	GetCollectionsByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentCollection, error)
	GetChunksByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentChunk, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) ReplaceCollection(ctx context.Context, tx *gorm.DB, collection *types.DocumentCollection, chunks []*types.DocumentChunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		if err := t.Where("course_id = ? AND source_id = ?", collection.CourseID, collection.SourceID).
			Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if err := t.Where("course_id = ? AND source_id = ?", collection.CourseID, collection.SourceID).
			Delete(&types.DocumentCollection{}).Error; err != nil {
			return err
		}
		if err := t.Create(collection).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		// Keep batches small because Text is large.
		const batchSize = 100
		return t.CreateInBatches(chunks, batchSize).Error
	})
}

func (r *documentRepo) GetCollection(ctx context.Context, tx *gorm.DB, courseID, sourceID string) (*types.DocumentCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var collection types.DocumentCollection
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND source_id = ?", courseID, sourceID).
		First(&collection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &collection, nil
}

func (r *documentRepo) GetCollectionsByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var collections []*types.DocumentCollection
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&collections).Error; err != nil {
		return nil, err
	}
	return collections, nil
}

func (r *documentRepo) GetChunksByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chunks []*types.DocumentChunk
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("source_id, ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}
