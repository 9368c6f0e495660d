package service

import (
	"errors"
	"testing"

	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/util"
)

func newTestQuestions(t *testing.T) *QuestionService {
	t.Helper()
	s, err := NewQuestionService()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return s
}

func TestCatalogLoadsAndResolvesIDs(t *testing.T) {
	s := newTestQuestions(t)
	q, err := s.GetByID("q-match-all-items")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.Type != model.QuestionQuery || q.ReturnKey != "itemId" {
		t.Fatalf("unexpected question payload: %+v", q)
	}
	if _, err := s.GetByID("q-no-such"); !errors.Is(err, util.ErrQuestionNotFound) {
		t.Fatalf("unknown id should fail, got %v", err)
	}
}

func TestFilterIntersectsConditions(t *testing.T) {
	s := newTestQuestions(t)

	got := s.Filter(QuestionFilter{Lesson: "where-filter", Difficulty: "medium"})
	if len(got) != 2 {
		t.Fatalf("expected 2 medium where-filter questions, got %d", len(got))
	}
	for _, q := range got {
		if q.Lesson != "where-filter" || q.Difficulty != "medium" {
			t.Fatalf("filter leaked %s", q.ID)
		}
	}

	if got := s.Filter(QuestionFilter{Concepts: []string{"count"}, Track: "cypher-basics"}); len(got) != 1 || got[0].ID != "q-rel-cart-count" {
		t.Fatalf("concept+track filter mismatch: %v", got)
	}

	if got := s.Filter(QuestionFilter{Domain: "no-such-domain"}); len(got) != 0 {
		t.Fatalf("unknown domain should match nothing")
	}
}

func TestStoryPoolFollowsLessonOrder(t *testing.T) {
	s := newTestQuestions(t)

	pool := s.StoryPool(model.DefaultTheme)
	if len(pool) != 9 {
		t.Fatalf("quokka theme should chain 3 lessons of 3 questions, got %d", len(pool))
	}
	if pool[0].ID != "q-mcq-node" || pool[3].ID != "q-mcq-where" || pool[8].ID != "q-rel-cart-count" {
		t.Fatalf("story pool out of lesson order: %s %s %s", pool[0].ID, pool[3].ID, pool[8].ID)
	}

	if pool := s.StoryPool("no-such-theme"); len(pool) != 0 {
		t.Fatalf("unknown theme should yield an empty pool")
	}
}

func TestLessonsScopedByTheme(t *testing.T) {
	s := newTestQuestions(t)

	lessons := s.Lessons("otter")
	if len(lessons) != 1 || lessons[0].Lesson != "count-order" {
		t.Fatalf("otter theme should expose a single lesson, got %v", lessons)
	}
	if all := s.Lessons(""); len(all) != 4 {
		t.Fatalf("full lesson catalog should have 4 entries, got %d", len(all))
	}
}
