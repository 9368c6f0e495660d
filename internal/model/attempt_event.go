package model

// AttemptEvent 作答事件流水，按课程维度做统计用。
// 快照是权威状态，这里只追加，不回写
type AttemptEvent struct {
	BaseModel
	UserID     uint   `gorm:"index;not null" json:"userId"`
	QuestionID string `gorm:"size:100;index;not null" json:"questionId"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	ElapsedMs  *int64 `json:"elapsedMs,omitempty"`
	Mode       string `gorm:"size:20" json:"mode"` // story / practice
}

func (AttemptEvent) TableName() string {
	return "attempt_events"
}

// ImportArchive 导入数据的归档记录，原始载荷存对象存储
type ImportArchive struct {
	UUIDBase
	UserID    uint   `gorm:"index" json:"userId"`
	ObjectKey string `gorm:"size:255" json:"objectKey"`
	Users     int    `json:"users"`
	Items     int    `json:"items"`
	Events    int    `json:"events"`
}

func (ImportArchive) TableName() string {
	return "import_archives"
}
