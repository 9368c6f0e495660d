package service

import (
	"sort"
	"strconv"

	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/pkg/monitoring"
)

// GradeResult 评分结果，expected/received 便于前端逐项展示差异
type GradeResult struct {
	IsCorrect bool     `json:"isCorrect"`
	Expected  []string `json:"expected,omitempty"`
	Received  []string `json:"received,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// RowValidator 针对单题的定制校验，完全接管默认的提取/比较流程
type RowValidator func(rows []model.Row) (bool, string)

// 行对象取值时依次尝试的键名
var preferredKeys = []string{"itemId", "userId", "id", "name"}

type GradingService struct {
	validators map[string]RowValidator
}

func NewGradingService() *GradingService {
	return &GradingService{validators: map[string]RowValidator{}}
}

// RegisterValidator 注册定制校验器，题目通过 validator 字段引用
func (s *GradingService) RegisterValidator(name string, fn RowValidator) {
	s.validators[name] = fn
}

// GradeChoice 选择题评分：选中项与正确项严格相等，无部分给分
func (s *GradingService) GradeChoice(q *model.Question, choiceID string) GradeResult {
	correctID := q.CorrectChoiceID()
	result := GradeResult{
		IsCorrect: choiceID != "" && choiceID == correctID,
		Expected:  []string{correctID},
		Received:  []string{choiceID},
	}
	if picked := q.FindChoice(choiceID); picked != nil {
		result.Message = picked.Feedback
	}
	s.observe(q, result.IsCorrect)
	return result
}

// GradeRows 查询题评分：先走定制校验器，否则按提取-去重-比较的默认路径
func (s *GradingService) GradeRows(q *model.Question, rows []model.Row) GradeResult {
	if q.Validator != "" {
		if fn, ok := s.validators[q.Validator]; ok {
			correct, message := fn(rows)
			s.observe(q, correct)
			return GradeResult{IsCorrect: correct, Message: message}
		}
	}

	received := s.ExtractValues(rows, q.ReturnKey)
	expected := append([]string(nil), q.Expected.Values...)

	correct := compareValues(expected, received, q.Expected.Ordered)
	s.observe(q, correct)
	return GradeResult{IsCorrect: correct, Expected: expected, Received: received}
}

// ExtractValues 把每行归约为一个代表值：指定返回列 > 首选键名 > 首列，
// 对象值再向内找一层首选键。统一转字符串后去重（保留首次出现顺序）并丢弃空串
func (s *GradingService) ExtractValues(rows []model.Row, returnKey string) []string {
	var values []string
	seen := make(map[string]bool)
	for _, row := range rows {
		raw := pickRowValue(row, returnKey)
		str := stringifyValue(raw)
		if str == "" || seen[str] {
			continue
		}
		seen[str] = true
		values = append(values, str)
	}
	return values
}

func pickRowValue(row model.Row, returnKey string) interface{} {
	if returnKey != "" {
		if v, ok := row.Get(returnKey); ok {
			return v
		}
	}
	for _, key := range preferredKeys {
		if v, ok := row.Get(key); ok && v != nil {
			return v
		}
	}
	v, _ := row.First()
	return v
}

// stringifyValue 标量直接转字符串；对象值先在其内部（含 properties 包装）
// 按首选键名找一层，找不到则放弃该行
func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case map[string]interface{}:
		inner := val
		if props, ok := val["properties"].(map[string]interface{}); ok {
			inner = props
		}
		for _, key := range preferredKeys {
			if nested, ok := inner[key]; ok && nested != nil {
				if _, isMap := nested.(map[string]interface{}); !isMap {
					return stringifyValue(nested)
				}
			}
		}
		return ""
	default:
		return ""
	}
}

func compareValues(expected, received []string, ordered bool) bool {
	if len(expected) != len(received) {
		return false
	}
	a := append([]string(nil), expected...)
	b := append([]string(nil), received...)
	if !ordered {
		sort.Strings(a)
		sort.Strings(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *GradingService) observe(q *model.Question, correct bool) {
	monitoring.GradingResults.WithLabelValues(string(q.Type), strconv.FormatBool(correct)).Inc()
}
