package repository

import (
	"gorm.io/gorm"

	"cypher_quest_backend/internal/model"
)

type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Create(archive *model.ImportArchive) error {
	return r.db.Create(archive).Error
}

func (r *ArchiveRepository) ListRecent(limit int) ([]model.ImportArchive, error) {
	var archives []model.ImportArchive
	err := r.db.Order("created_at DESC").Limit(limit).Find(&archives).Error
	return archives, err
}
