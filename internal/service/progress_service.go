package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/pkg/logger"
)

// SnapshotStore 快照 blob 的底层读写，生产实现走 Redis
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// AttemptLedger 作答事件的追加与聚合
type AttemptLedger interface {
	Append(event *model.AttemptEvent) error
}

const (
	snapshotKeyV2 = "cypherquest:progress:v2:%d"
	snapshotKeyV1 = "cypherquest:progress:v1:%d"
)

// ProgressService 进度快照的读写、迁移与弱点评分。
// 快照是单写者模型：每次变更克隆-修改-整体回写
type ProgressService struct {
	store  SnapshotStore
	ledger AttemptLedger

	mu      sync.RWMutex
	scoring config.ScoringConfig

	now func() time.Time
}

func NewProgressService(store SnapshotStore, ledger AttemptLedger, scoring config.ScoringConfig) *ProgressService {
	return &ProgressService{
		store:   store,
		ledger:  ledger,
		scoring: scoring,
		now:     time.Now,
	}
}

// SetScoring 配置热更新回调入口
func (s *ProgressService) SetScoring(scoring config.ScoringConfig) {
	s.mu.Lock()
	s.scoring = scoring
	s.mu.Unlock()
}

// Load 读取快照。新键缺失时尝试旧键迁移；blob 损坏时退回全新快照，
// 不向上抛错，首次使用和坏写入对调用方是同一条路径
func (s *ProgressService) Load(ctx context.Context, userID uint) (*model.ProgressSnapshot, error) {
	key := fmt.Sprintf(snapshotKeyV2, userID)
	data, ok, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		var snap model.ProgressSnapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr != nil {
			logger.Log.Warn("进度快照损坏，重置为初始状态",
				zap.Uint("user_id", userID), zap.Error(jsonErr))
			return model.NewProgressSnapshot(), nil
		}
		sanitizeSnapshot(&snap)
		return &snap, nil
	}

	migrated, found, err := s.migrateLegacy(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		if saveErr := s.Save(ctx, userID, migrated); saveErr != nil {
			return nil, saveErr
		}
		// 迁移落盘后清掉旧键，后续读取不再走迁移路径
		if delErr := s.store.Delete(ctx, fmt.Sprintf(snapshotKeyV1, userID)); delErr != nil {
			logger.Log.Warn("旧版快照清理失败", zap.Uint("user_id", userID), zap.Error(delErr))
		}
		return migrated, nil
	}
	return model.NewProgressSnapshot(), nil
}

func (s *ProgressService) Save(ctx context.Context, userID uint, snap *model.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, fmt.Sprintf(snapshotKeyV2, userID), data)
}

// migrateLegacy 旧版快照只有单一 lastIsCorrect 标记，
// 迁移时 corrects 取 1（最近一次对）或 0，主题位置表从空开始
func (s *ProgressService) migrateLegacy(ctx context.Context, userID uint) (*model.ProgressSnapshot, bool, error) {
	data, ok, err := s.store.Load(ctx, fmt.Sprintf(snapshotKeyV1, userID))
	if err != nil || !ok {
		return nil, false, err
	}
	var legacy model.LegacyProgressSnapshot
	if jsonErr := json.Unmarshal(data, &legacy); jsonErr != nil {
		logger.Log.Warn("旧版快照损坏，跳过迁移", zap.Uint("user_id", userID), zap.Error(jsonErr))
		return nil, false, nil
	}

	snap := model.NewProgressSnapshot()
	snap.StoryIndex = legacy.StoryIndex
	snap.StoryIndices[model.DefaultTheme] = legacy.StoryIndex
	for id, old := range legacy.Records {
		corrects := 0
		if old.LastIsCorrect {
			corrects = 1
		}
		snap.Records[id] = model.AttemptRecord{
			Attempts:       old.Attempts,
			Corrects:       corrects,
			LastWasCorrect: old.LastIsCorrect,
			LastAttemptAt:  old.LastAttemptAt,
		}
	}
	sanitizeSnapshot(snap)
	logger.Log.Info("旧版进度快照迁移完成",
		zap.Uint("user_id", userID), zap.Int("records", len(snap.Records)))
	return snap, true, nil
}

// RecordAttempt 记一次作答：台账累加、均值滚动更新，整体回写快照，
// 同步追加事件流水。返回新快照供会话层继续使用
func (s *ProgressService) RecordAttempt(ctx context.Context, userID uint, questionID string, isCorrect bool, elapsedMs *int64, mode string) (*model.ProgressSnapshot, error) {
	snap, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := snap.Clone()

	record := next.Records[questionID]
	prevAttempts := record.Attempts
	record.Attempts++
	if isCorrect {
		record.Corrects++
	}
	record.LastWasCorrect = isCorrect
	now := s.now()
	record.LastAttemptAt = &now
	if elapsedMs != nil {
		sample := float64(*elapsedMs)
		if record.AvgResponseMs == nil {
			record.AvgResponseMs = &sample
		} else {
			avg := (*record.AvgResponseMs*float64(prevAttempts) + sample) / float64(record.Attempts)
			record.AvgResponseMs = &avg
		}
	}
	next.Records[questionID] = record

	if err := s.Save(ctx, userID, next); err != nil {
		return nil, err
	}

	if s.ledger != nil {
		event := &model.AttemptEvent{
			UserID:     userID,
			QuestionID: questionID,
			IsCorrect:  isCorrect,
			ElapsedMs:  elapsedMs,
			Mode:       mode,
		}
		if ledgerErr := s.ledger.Append(event); ledgerErr != nil {
			// 流水只做统计，追加失败不影响快照权威状态
			logger.Log.Warn("作答流水追加失败", zap.Uint("user_id", userID), zap.Error(ledgerErr))
		}
	}
	return next, nil
}

// UpdatePosition 更新某主题的续读位置（负数归零），
// 同时镜像到旧的单一位置字段
func (s *ProgressService) UpdatePosition(ctx context.Context, userID uint, theme string, index int) (*model.ProgressSnapshot, error) {
	snap, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := snap.Clone()
	if index < 0 {
		index = 0
	}
	if theme == "" {
		theme = next.ActiveTheme
	}
	next.StoryIndices[theme] = index
	if theme == next.ActiveTheme {
		next.StoryIndex = index
	}
	if err := s.Save(ctx, userID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// SetTheme 切换主题并把旧位置字段对齐到新主题
func (s *ProgressService) SetTheme(ctx context.Context, userID uint, theme string, ambience string) (*model.ProgressSnapshot, error) {
	snap, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := snap.Clone()
	if theme != "" {
		next.ActiveTheme = theme
		next.StoryIndex = next.StoryIndices[theme]
	}
	if ambience != "" {
		next.Ambience = ambience
	}
	if err := s.Save(ctx, userID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// WeaknessScore 弱点分：(1-正确率) + 最近答错罚分 + 久未复习加权。
// 没有作答记录的题恒为 0，永远不会进弱题池
func (s *ProgressService) WeaknessScore(record model.AttemptRecord, now time.Time) float64 {
	if record.Attempts <= 0 {
		return 0
	}
	s.mu.RLock()
	scoring := s.scoring
	s.mu.RUnlock()

	accuracy := float64(record.Corrects) / float64(record.Attempts)
	score := 1 - accuracy
	if !record.LastWasCorrect {
		score += scoring.MissPenalty
	}
	if record.LastAttemptAt != nil {
		days := now.Sub(*record.LastAttemptAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		if days > scoring.StaleCapDays {
			days = scoring.StaleCapDays
		}
		ratio := days / scoring.TimeBonusDays
		if ratio > 1 {
			ratio = 1
		}
		score += ratio * scoring.TimeBonusWeight
	}
	return score
}

// WeakPool 按弱点分筛选并降序排序；全部为 0 时退回原始题池，
// 避免弱题练习模式拿到空集
func (s *ProgressService) WeakPool(questions []*model.Question, snap *model.ProgressSnapshot, now time.Time) []*model.Question {
	type scored struct {
		q     *model.Question
		score float64
	}
	var weak []scored
	for _, q := range questions {
		score := s.WeaknessScore(snap.Records[q.ID], now)
		if score > 0 {
			weak = append(weak, scored{q: q, score: score})
		}
	}
	if len(weak) == 0 {
		return questions
	}
	sort.SliceStable(weak, func(i, j int) bool {
		return weak[i].score > weak[j].score
	})
	pool := make([]*model.Question, len(weak))
	for i, w := range weak {
		pool[i] = w.q
	}
	return pool
}

// sanitizeSnapshot 兜底修复：corrects 不得超过 attempts，容器字段非空
func sanitizeSnapshot(snap *model.ProgressSnapshot) {
	if snap.StoryIndices == nil {
		snap.StoryIndices = map[string]int{}
	}
	if snap.Records == nil {
		snap.Records = map[string]model.AttemptRecord{}
	}
	if snap.ActiveTheme == "" {
		snap.ActiveTheme = model.DefaultTheme
	}
	for id, record := range snap.Records {
		if record.Corrects > record.Attempts {
			record.Corrects = record.Attempts
			snap.Records[id] = record
		}
	}
}
