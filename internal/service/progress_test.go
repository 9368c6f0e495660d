package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeStore 内存版快照存储
type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}}
}

func (f *fakeStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok := f.data[key]
	return data, ok, nil
}

func (f *fakeStore) Save(ctx context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

// fakeLedger 收集追加的事件
type fakeLedger struct {
	events []*model.AttemptEvent
}

func (f *fakeLedger) Append(event *model.AttemptEvent) error {
	f.events = append(f.events, event)
	return nil
}

func defaultScoring() config.ScoringConfig {
	return config.ScoringConfig{
		MissPenalty:     0.5,
		TimeBonusWeight: 0.2,
		TimeBonusDays:   7,
		StaleCapDays:    30,
	}
}

func newTestProgress(store SnapshotStore, ledger AttemptLedger) *ProgressService {
	return NewProgressService(store, ledger, defaultScoring())
}

func TestLoadReturnsFreshSnapshotOnFirstRun(t *testing.T) {
	s := newTestProgress(newFakeStore(), nil)
	snap, err := s.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.ActiveTheme != model.DefaultTheme {
		t.Fatalf("fresh snapshot should use the default theme, got %q", snap.ActiveTheme)
	}
	if len(snap.Records) != 0 {
		t.Fatalf("fresh snapshot should carry no records")
	}
}

func TestLoadRecoversFromCorruptBlob(t *testing.T) {
	store := newFakeStore()
	store.data[fmt.Sprintf(snapshotKeyV2, uint(1))] = []byte("{broken json")

	s := newTestProgress(store, nil)
	snap, err := s.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("corrupt blob must not surface as error, got %v", err)
	}
	if len(snap.Records) != 0 || snap.ActiveTheme != model.DefaultTheme {
		t.Fatalf("corrupt blob should fall back to a fresh snapshot")
	}
}

func TestLoadMigratesLegacySnapshot(t *testing.T) {
	store := newFakeStore()
	when := time.Now().Add(-48 * time.Hour)
	legacy := model.LegacyProgressSnapshot{
		StoryIndex: 4,
		Records: map[string]model.LegacyAttemptRecord{
			"q-a": {Attempts: 5, LastIsCorrect: true, LastAttemptAt: &when},
			"q-b": {Attempts: 2, LastIsCorrect: false},
		},
	}
	raw, _ := json.Marshal(legacy)
	store.data[fmt.Sprintf(snapshotKeyV1, uint(7))] = raw

	s := newTestProgress(store, nil)
	snap, err := s.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if snap.StoryIndex != 4 {
		t.Fatalf("legacy index should carry over, got %d", snap.StoryIndex)
	}
	if snap.StoryIndices[model.DefaultTheme] != 4 {
		t.Fatalf("default theme position should mirror legacy index")
	}
	a := snap.Records["q-a"]
	if a.Attempts != 5 || a.Corrects != 1 || !a.LastWasCorrect {
		t.Fatalf("legacy correct record migrated wrong: %+v", a)
	}
	b := snap.Records["q-b"]
	if b.Attempts != 2 || b.Corrects != 0 || b.LastWasCorrect {
		t.Fatalf("legacy incorrect record migrated wrong: %+v", b)
	}

	// 迁移结果必须已持久化到新键，旧键清除
	if _, ok := store.data[fmt.Sprintf(snapshotKeyV2, uint(7))]; !ok {
		t.Fatalf("migrated snapshot should be persisted under the new key")
	}
	if _, ok := store.data[fmt.Sprintf(snapshotKeyV1, uint(7))]; ok {
		t.Fatalf("legacy key should be removed after migration")
	}
}

func TestRecordAttemptUpdatesLedgerAndSnapshot(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	s := newTestProgress(store, ledger)
	ctx := context.Background()

	elapsed := int64(1000)
	snap, err := s.RecordAttempt(ctx, 1, "q-x", true, &elapsed, "story")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	record := snap.Records["q-x"]
	if record.Attempts != 1 || record.Corrects != 1 || !record.LastWasCorrect {
		t.Fatalf("first attempt recorded wrong: %+v", record)
	}
	if record.AvgResponseMs == nil || *record.AvgResponseMs != 1000 {
		t.Fatalf("first latency sample should set the mean, got %v", record.AvgResponseMs)
	}

	elapsed = 2000
	snap, err = s.RecordAttempt(ctx, 1, "q-x", false, &elapsed, "story")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	record = snap.Records["q-x"]
	if record.Attempts != 2 || record.Corrects != 1 || record.LastWasCorrect {
		t.Fatalf("second attempt recorded wrong: %+v", record)
	}
	if *record.AvgResponseMs != 1500 {
		t.Fatalf("running mean should be 1500, got %v", *record.AvgResponseMs)
	}
	if record.Corrects > record.Attempts {
		t.Fatalf("corrects must never exceed attempts")
	}

	// 没有延迟样本时均值不变
	snap, _ = s.RecordAttempt(ctx, 1, "q-x", true, nil, "story")
	if *snap.Records["q-x"].AvgResponseMs != 1500 {
		t.Fatalf("missing sample must leave the mean unchanged")
	}

	if len(ledger.events) != 3 {
		t.Fatalf("each attempt should append one ledger event, got %d", len(ledger.events))
	}
	if ledger.events[0].QuestionID != "q-x" || !ledger.events[0].IsCorrect {
		t.Fatalf("ledger event mismatch: %+v", ledger.events[0])
	}

	// 快照必须已整体回写
	reloaded, _ := s.Load(ctx, 1)
	if reloaded.Records["q-x"].Attempts != 3 {
		t.Fatalf("snapshot should be persisted after each mutation")
	}
}

func TestUpdatePositionClampsAndMirrors(t *testing.T) {
	s := newTestProgress(newFakeStore(), nil)
	ctx := context.Background()

	snap, err := s.UpdatePosition(ctx, 1, model.DefaultTheme, -3)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if snap.StoryIndices[model.DefaultTheme] != 0 {
		t.Fatalf("negative index should clamp to 0")
	}

	snap, _ = s.UpdatePosition(ctx, 1, model.DefaultTheme, 6)
	if snap.StoryIndices[model.DefaultTheme] != 6 || snap.StoryIndex != 6 {
		t.Fatalf("active theme position should mirror to the legacy field")
	}

	// 非激活主题不影响旧字段
	snap, _ = s.UpdatePosition(ctx, 1, "otter", 2)
	if snap.StoryIndex != 6 {
		t.Fatalf("inactive theme must not touch the legacy mirror")
	}
	if snap.StoryIndices["otter"] != 2 {
		t.Fatalf("per-theme positions must be independent")
	}
}

func TestWeaknessScoreFormula(t *testing.T) {
	s := newTestProgress(newFakeStore(), nil)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 从未作答：恒为 0
	if got := s.WeaknessScore(model.AttemptRecord{}, now); got != 0 {
		t.Fatalf("untouched question must score 0, got %v", got)
	}

	// 4 次作答 1 次正确，最近答错，7 天未复习:
	// (1 - 0.25) + 0.5 + min(7/7,1)*0.2 = 1.45
	week := now.Add(-7 * 24 * time.Hour)
	record := model.AttemptRecord{Attempts: 4, Corrects: 1, LastWasCorrect: false, LastAttemptAt: &week}
	if got := s.WeaknessScore(record, now); math.Abs(got-1.45) > 1e-9 {
		t.Fatalf("expected 1.45, got %v", got)
	}

	// 全对且刚刚复习：只剩 0 分项
	justNow := now
	record = model.AttemptRecord{Attempts: 3, Corrects: 3, LastWasCorrect: true, LastAttemptAt: &justNow}
	if got := s.WeaknessScore(record, now); got != 0 {
		t.Fatalf("mastered and fresh should score 0, got %v", got)
	}

	// 间隔超过上限按 30 天计，时间加权已封顶
	old := now.Add(-90 * 24 * time.Hour)
	record = model.AttemptRecord{Attempts: 1, Corrects: 1, LastWasCorrect: true, LastAttemptAt: &old}
	if got := s.WeaknessScore(record, now); math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("stale cap should leave only the capped time bonus 0.2, got %v", got)
	}
}

func TestWeakPoolSortAndFallback(t *testing.T) {
	s := newTestProgress(newFakeStore(), nil)
	now := time.Now()

	q1 := &model.Question{ID: "q-1"}
	q2 := &model.Question{ID: "q-2"}
	q3 := &model.Question{ID: "q-3"}
	pool := []*model.Question{q1, q2, q3}

	last := now.Add(-time.Hour)
	snap := model.NewProgressSnapshot()
	snap.Records["q-1"] = model.AttemptRecord{Attempts: 2, Corrects: 2, LastWasCorrect: true, LastAttemptAt: &now}
	snap.Records["q-2"] = model.AttemptRecord{Attempts: 4, Corrects: 1, LastWasCorrect: false, LastAttemptAt: &last}
	snap.Records["q-3"] = model.AttemptRecord{Attempts: 2, Corrects: 1, LastWasCorrect: false, LastAttemptAt: &last}

	weak := s.WeakPool(pool, snap, now)
	if len(weak) != 2 {
		t.Fatalf("mastered question should be filtered out, got %d entries", len(weak))
	}
	if weak[0].ID != "q-2" || weak[1].ID != "q-3" {
		t.Fatalf("weak pool should sort by score descending, got %s, %s", weak[0].ID, weak[1].ID)
	}

	// 全部掌握时退回完整题池
	fresh := model.NewProgressSnapshot()
	fallback := s.WeakPool(pool, fresh, now)
	if len(fallback) != 3 {
		t.Fatalf("empty weak pool should fall back to the full pool")
	}
}

func TestLoadClampsCorrectsInvariant(t *testing.T) {
	store := newFakeStore()
	snap := model.NewProgressSnapshot()
	snap.Records["q-bad"] = model.AttemptRecord{Attempts: 2, Corrects: 5}
	raw, _ := json.Marshal(snap)
	store.data[fmt.Sprintf(snapshotKeyV2, uint(1))] = raw

	s := newTestProgress(store, nil)
	loaded, err := s.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Records["q-bad"].Corrects != 2 {
		t.Fatalf("corrects should be clamped to attempts, got %d", loaded.Records["q-bad"].Corrects)
	}
}
