package model

type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionQuery QuestionType = "query"
)

// Choice 选择题选项，正误标记与针对性反馈
type Choice struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback,omitempty"`
}

// Expected 查询题的期望答案：标量列表 + 是否要求顺序一致
type Expected struct {
	Values  []string `json:"values"`
	Ordered bool     `json:"ordered"`
}

// Question 题目静态内容，随二进制嵌入，运行期只读
// swagger:model Question
type Question struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"type"`
	Domain     string       `json:"domain"`
	Track      string       `json:"track"`
	Lesson     string       `json:"lesson"`
	Concepts   []string     `json:"concepts"`
	Difficulty string       `json:"difficulty"`
	Prompt     string       `json:"prompt"`
	Hint       string       `json:"hint,omitempty"`

	// mcq 专用
	Choices []Choice `json:"choices,omitempty"`
	Answer  string   `json:"answer,omitempty"` // 简单变体：正确选项 id

	// query 专用
	Starter    string   `json:"starter,omitempty"`
	AllowedOps []string `json:"allowedOps,omitempty"`
	ReturnKey  string   `json:"returnKey,omitempty"` // 指定提取的返回列
	Expected   Expected `json:"expected,omitempty"`
	Validator  string   `json:"validator,omitempty"` // 定制校验器注册键，优先于 Expected
}

// CorrectChoiceID 返回正确选项 id。两种内容变体：choices 带 correct 标记，
// 或 answer 字段直接给出
func (q *Question) CorrectChoiceID() string {
	if q.Answer != "" {
		return q.Answer
	}
	for _, c := range q.Choices {
		if c.Correct {
			return c.ID
		}
	}
	return ""
}

func (q *Question) FindChoice(id string) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i]
		}
	}
	return nil
}

// Lesson 课程单元，story 模式按主题顺序推进
type LessonInfo struct {
	Theme   string   `json:"theme"`
	Track   string   `json:"track"`
	Lesson  string   `json:"lesson"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Order   int      `json:"order"`
	Items   []string `json:"items"` // question ids
}
