package repository

import (
	"gorm.io/gorm"

	"cypher_quest_backend/internal/model"
)

type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Append(event *model.AttemptEvent) error {
	return r.db.Create(event).Error
}

// QuestionStat 单题聚合
type QuestionStat struct {
	QuestionID string `json:"questionId"`
	Attempts   int64  `json:"attempts"`
	Corrects   int64  `json:"corrects"`
}

// StatsByUser 按题目聚合某学习者的作答流水
func (r *AttemptRepository) StatsByUser(userID uint) ([]QuestionStat, error) {
	var stats []QuestionStat
	err := r.db.Model(&model.AttemptEvent{}).
		Select("question_id, COUNT(*) AS attempts, SUM(CASE WHEN is_correct THEN 1 ELSE 0 END) AS corrects").
		Where("user_id = ?", userID).
		Group("question_id").
		Scan(&stats).Error
	return stats, err
}

func (r *AttemptRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.AttemptEvent{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
