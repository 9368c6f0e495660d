package model

import "time"

const DefaultTheme = "quokka"

// AttemptRecord 单题的作答台账。不变量：Corrects <= Attempts
type AttemptRecord struct {
	Attempts      int        `json:"attempts"`
	Corrects      int        `json:"corrects"`
	LastWasCorrect bool      `json:"lastWasCorrect"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	AvgResponseMs *float64   `json:"avgResponseMs,omitempty"`
}

// ProgressSnapshot 学习者进度快照。整体按值替换，单写者，
// 每次变更后整块序列化持久化
type ProgressSnapshot struct {
	StoryIndices map[string]int           `json:"storyIndices"`
	ActiveTheme  string                   `json:"activeTheme"`
	Ambience     string                   `json:"ambience,omitempty"`
	StoryIndex   int                      `json:"storyIndex"` // 旧字段，镜像当前主题的位置
	Records      map[string]AttemptRecord `json:"records"`
}

func NewProgressSnapshot() *ProgressSnapshot {
	return &ProgressSnapshot{
		StoryIndices: map[string]int{},
		ActiveTheme:  DefaultTheme,
		Records:      map[string]AttemptRecord{},
	}
}

// Clone 深拷贝，保证状态转移是值替换而非原地修改
func (s *ProgressSnapshot) Clone() *ProgressSnapshot {
	next := &ProgressSnapshot{
		StoryIndices: make(map[string]int, len(s.StoryIndices)),
		ActiveTheme:  s.ActiveTheme,
		Ambience:     s.Ambience,
		StoryIndex:   s.StoryIndex,
		Records:      make(map[string]AttemptRecord, len(s.Records)),
	}
	for k, v := range s.StoryIndices {
		next.StoryIndices[k] = v
	}
	for k, v := range s.Records {
		next.Records[k] = v
	}
	return next
}

// LegacyAttemptRecord 旧版快照的台账：只有一个正误标记，没有计数
type LegacyAttemptRecord struct {
	Attempts      int        `json:"attempts"`
	LastIsCorrect bool       `json:"lastIsCorrect"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
}

// LegacyProgressSnapshot 旧版快照：单一 storyIndex，无多主题位置
type LegacyProgressSnapshot struct {
	StoryIndex int                            `json:"storyIndex"`
	Records    map[string]LegacyAttemptRecord `json:"records"`
}
