package service

import (
	"context"
	"errors"
	"testing"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/util"
	"cypher_quest_backend/pkg/graphdb"
)

// fakeGraph 可编程的图后端
type fakeGraph struct {
	records []graphdb.Record
	err     error
	queries []string
}

func (f *fakeGraph) Read(ctx context.Context, cypher string, params map[string]interface{}) ([]graphdb.Record, error) {
	f.queries = append(f.queries, cypher)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeGraph) Ping(ctx context.Context) error { return f.err }

func testRelayConfig() *config.Config {
	return &config.Config{
		Neo4j: config.Neo4jConfig{TimeoutSeconds: 1},
		Relay: config.RelayConfig{DefaultLimit: 50, MaxRows: 100},
	}
}

func newTestSession(t *testing.T, graph *fakeGraph, store SnapshotStore) (*SessionService, *ProgressService) {
	t.Helper()
	questions, err := NewQuestionService()
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	safety := NewSafetyService(50)
	grading := NewGradingService()
	progress := newTestProgress(store, nil)
	relay := NewRelayService(graph, safety, testRelayConfig())
	return NewSessionService(questions, grading, relay, progress, safety), progress
}

func TestStartStoryResumesFromBookmark(t *testing.T) {
	store := newFakeStore()
	sessions, progress := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	if _, err := progress.UpdatePosition(ctx, 1, model.DefaultTheme, 2); err != nil {
		t.Fatalf("seed bookmark: %v", err)
	}

	sess, err := sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	view := sess.View()
	if view.State != StateAnswering {
		t.Fatalf("fresh session should be answering, got %s", view.State)
	}
	if view.Index != 2 {
		t.Fatalf("story mode should resume at the bookmark, got index %d", view.Index)
	}
	if view.Question == nil {
		t.Fatalf("current question missing")
	}
}

func TestStartPracticeIgnoresBookmark(t *testing.T) {
	store := newFakeStore()
	sessions, progress := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	progress.UpdatePosition(ctx, 1, model.DefaultTheme, 3)

	sess, err := sessions.Start(ctx, 1, util.ModePractice, "", QuestionFilter{Track: "cypher-basics"}, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view := sess.View(); view.Index != 0 {
		t.Fatalf("practice mode always starts at 0, got %d", view.Index)
	}
}

func TestSubmitChoiceTransitionsAndRecords(t *testing.T) {
	store := newFakeStore()
	sessions, progress := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)

	// 空作答：校验失败，留在作答态，不记进度
	if _, err := sessions.Submit(ctx, 1, SubmitRequest{}); !errors.Is(err, util.ErrEmptyAnswer) {
		t.Fatalf("empty choice should be rejected, got %v", err)
	}
	snap, _ := progress.Load(ctx, 1)
	if len(snap.Records) != 0 {
		t.Fatalf("validation failure must not touch progress")
	}

	// 第一题 q-mcq-node 正确选项是 a
	feedback, err := sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if feedback.State != StateFeedback || !feedback.Grade.IsCorrect {
		t.Fatalf("correct choice should land in feedback, got %+v", feedback)
	}

	snap, _ = progress.Load(ctx, 1)
	record := snap.Records["q-mcq-node"]
	if record.Attempts != 1 || record.Corrects != 1 {
		t.Fatalf("progress should record exactly one attempt: %+v", record)
	}

	// 反馈态重复提交被拒绝
	if _, err := sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"}); !errors.Is(err, util.ErrNotInFeedback) {
		t.Fatalf("submitting in feedback state should fail, got %v", err)
	}
}

func TestNextAdvancesAndBookmarksStoryMode(t *testing.T) {
	store := newFakeStore()
	sessions, progress := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)

	if _, err := sessions.Next(ctx, 1); !errors.Is(err, util.ErrNotInFeedback) {
		t.Fatalf("next outside feedback should fail, got %v", err)
	}

	sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"})
	sess, err := sessions.Next(ctx, 1)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	view := sess.View()
	if view.State != StateAnswering || view.Index != 1 {
		t.Fatalf("next should advance to answering index 1, got %s/%d", view.State, view.Index)
	}
	if view.Grade != nil || view.Message != "" {
		t.Fatalf("per-question transient state should reset on advance")
	}

	snap, _ := progress.Load(ctx, 1)
	if snap.StoryIndices[model.DefaultTheme] != 1 {
		t.Fatalf("story mode should bookmark the new position")
	}
}

func TestQuerySubmitSuccess(t *testing.T) {
	store := newFakeStore()
	graph := &fakeGraph{
		records: []graphdb.Record{
			{Keys: []string{"itemId"}, Values: []interface{}{"i-001"}},
			{Keys: []string{"itemId"}, Values: []interface{}{"i-002"}},
			{Keys: []string{"itemId"}, Values: []interface{}{"i-003"}},
			{Keys: []string{"itemId"}, Values: []interface{}{"i-004"}},
			{Keys: []string{"itemId"}, Values: []interface{}{"i-005"}},
		},
	}
	sessions, progress := newTestSession(t, graph, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)
	sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"})
	sessions.Next(ctx, 1) // q-match-all-items

	feedback, err := sessions.Submit(ctx, 1, SubmitRequest{
		QueryText: "MATCH (i:Item) RETURN i.itemId AS itemId",
	})
	if err != nil {
		t.Fatalf("query submit: %v", err)
	}
	if !feedback.Grade.IsCorrect {
		t.Fatalf("expected correct grade: %+v", feedback.Grade)
	}
	if len(feedback.Rows) != 5 {
		t.Fatalf("rows should be returned with the feedback, got %d", len(feedback.Rows))
	}

	// 中继自动补 LIMIT
	if len(graph.queries) != 1 || graph.queries[0] != "MATCH (i:Item) RETURN i.itemId AS itemId LIMIT 50" {
		t.Fatalf("default limit should be appended, got %v", graph.queries)
	}

	snap, _ := progress.Load(ctx, 1)
	if snap.Records["q-match-all-items"].Corrects != 1 {
		t.Fatalf("query attempt should be recorded")
	}
}

func TestQuerySubmitAdvisoryViolation(t *testing.T) {
	store := newFakeStore()
	sessions, progress := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)
	sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"})
	sessions.Next(ctx, 1)

	_, err := sessions.Submit(ctx, 1, SubmitRequest{QueryText: "MATCH (n) DELETE n"})
	if !errors.Is(err, util.ErrQueryForbidden) {
		t.Fatalf("disallowed clause should be rejected, got %v", err)
	}

	// 安全违规既不换状态也不记分
	sess, _ := sessions.Current(1)
	if view := sess.View(); view.State != StateAnswering {
		t.Fatalf("session should stay answering after a safety violation")
	}
	snap, _ := progress.Load(ctx, 1)
	if len(snap.Records) != 1 { // 只有先前的 mcq 一条
		t.Fatalf("violation must not create an attempt record")
	}
}

func TestQuerySubmitExecutionFailureKeepsAnswering(t *testing.T) {
	store := newFakeStore()
	graph := &fakeGraph{err: errors.New("connection refused")}
	sessions, progress := newTestSession(t, graph, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)
	sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"})
	sessions.Next(ctx, 1)

	_, err := sessions.Submit(ctx, 1, SubmitRequest{QueryText: "MATCH (i:Item) RETURN i.itemId AS itemId"})
	if !errors.Is(err, util.ErrExecutionFailed) {
		t.Fatalf("execution failure expected, got %v", err)
	}

	sess, _ := sessions.Current(1)
	view := sess.View()
	if view.State != StateAnswering || view.Pending {
		t.Fatalf("failed execution should allow immediate retry, got state=%s pending=%v", view.State, view.Pending)
	}
	snap, _ := progress.Load(ctx, 1)
	if _, recorded := snap.Records["q-match-all-items"]; recorded {
		t.Fatalf("an attempt that never executed must not be scored")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	store := newFakeStore()
	sessions, _ := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)
	sess, _ := sessions.Current(1)

	// 模拟提交发出后题池被重置：epoch 变化，迟到响应必须丢弃
	sess.mu.Lock()
	epoch := sess.Epoch
	sess.mu.Unlock()

	sessions.Start(ctx, 1, util.ModeStory, model.DefaultTheme, QuestionFilter{}, false)

	sess.mu.Lock()
	changed := sess.Epoch != epoch
	sess.mu.Unlock()
	if !changed {
		t.Fatalf("pool reset should bump the epoch")
	}
}

func TestSessionRunsToFinishedAndRestarts(t *testing.T) {
	store := newFakeStore()
	sessions, _ := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	// practice 只取一道选择题，好走完整个状态机
	sess, err := sessions.Start(ctx, 1, util.ModePractice, "", QuestionFilter{Lesson: "match-return", Difficulty: "easy", Search: "노드"}, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if total := sess.View().Total; total != 1 {
		t.Fatalf("expected a single-question pool, got %d", total)
	}

	if _, err := sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sess, err = sessions.Next(ctx, 1)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sess.View().State != StateFinished {
		t.Fatalf("exhausting the pool should finish the session")
	}

	if _, err := sessions.Submit(ctx, 1, SubmitRequest{ChoiceID: "a"}); !errors.Is(err, util.ErrSessionFinished) {
		t.Fatalf("submitting after finish should fail, got %v", err)
	}

	sess, err = sessions.Restart(1)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	view := sess.View()
	if view.State != StateAnswering || view.Index != 0 {
		t.Fatalf("restart should return to question 0, got %s/%d", view.State, view.Index)
	}
}

func TestStartWeakPracticeFallsBackToFullPool(t *testing.T) {
	store := newFakeStore()
	sessions, _ := newTestSession(t, &fakeGraph{}, store)
	ctx := context.Background()

	// 没有任何作答记录：弱题池为空，应退回完整筛选结果
	sess, err := sessions.Start(ctx, 1, util.ModePractice, "", QuestionFilter{Track: "cypher-basics"}, true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.View().Total == 0 {
		t.Fatalf("weak practice with no history should fall back to the full pool")
	}
}
