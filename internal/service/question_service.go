package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cypher_quest_backend/internal/content"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/util"
)

// QuestionFilter 题目筛选条件，全部可选，条件之间取交集
type QuestionFilter struct {
	Domain     string   `form:"domain"`
	Track      string   `form:"track"`
	Lesson     string   `form:"lesson"`
	Difficulty string   `form:"difficulty"`
	Concepts   []string `form:"concepts"`
	Search     string   `form:"search"`
}

type catalog struct {
	Lessons   []model.LessonInfo `json:"lessons"`
	Questions []*model.Question  `json:"questions"`
}

// QuestionService 内嵌题库的加载与检索。题库随二进制只读发布，
// 加载后不再变更，无需加锁
type QuestionService struct {
	questions []*model.Question
	lessons   []model.LessonInfo
	byID      map[string]*model.Question
}

func NewQuestionService() (*QuestionService, error) {
	raw, err := content.Questions()
	if err != nil {
		return nil, fmt.Errorf("load question catalog: %w", err)
	}
	var cat catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}

	byID := make(map[string]*model.Question, len(cat.Questions))
	for _, q := range cat.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question catalog: entry missing id")
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("question catalog: duplicate id %s", q.ID)
		}
		byID[q.ID] = q
	}
	sort.SliceStable(cat.Lessons, func(i, j int) bool {
		if cat.Lessons[i].Theme != cat.Lessons[j].Theme {
			return cat.Lessons[i].Theme < cat.Lessons[j].Theme
		}
		return cat.Lessons[i].Order < cat.Lessons[j].Order
	})

	return &QuestionService{
		questions: cat.Questions,
		lessons:   cat.Lessons,
		byID:      byID,
	}, nil
}

func (s *QuestionService) GetByID(id string) (*model.Question, error) {
	q, ok := s.byID[id]
	if !ok {
		return nil, util.ErrQuestionNotFound
	}
	return q, nil
}

// Filter 按条件筛选，保持题库原始顺序
func (s *QuestionService) Filter(filter QuestionFilter) []*model.Question {
	var out []*model.Question
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, q := range s.questions {
		if filter.Domain != "" && q.Domain != filter.Domain {
			continue
		}
		if filter.Track != "" && q.Track != filter.Track {
			continue
		}
		if filter.Lesson != "" && q.Lesson != filter.Lesson {
			continue
		}
		if filter.Difficulty != "" && q.Difficulty != filter.Difficulty {
			continue
		}
		if len(filter.Concepts) > 0 && !hasAnyConcept(q.Concepts, filter.Concepts) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Prompt), search) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// StoryPool 某主题的顺序题池：按课程 order 串联各课的题目
func (s *QuestionService) StoryPool(theme string) []*model.Question {
	var pool []*model.Question
	for _, lesson := range s.lessons {
		if lesson.Theme != theme {
			continue
		}
		for _, id := range lesson.Items {
			if q, ok := s.byID[id]; ok {
				pool = append(pool, q)
			}
		}
	}
	return pool
}

// Lessons 课程目录，story 模式的导航数据
func (s *QuestionService) Lessons(theme string) []model.LessonInfo {
	if theme == "" {
		return s.lessons
	}
	var out []model.LessonInfo
	for _, lesson := range s.lessons {
		if lesson.Theme == theme {
			out = append(out, lesson)
		}
	}
	return out
}

func (s *QuestionService) All() []*model.Question {
	return s.questions
}

func hasAnyConcept(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
