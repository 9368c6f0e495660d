package controller

import (
	"strings"

	"github.com/gin-gonic/gin"

	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questions *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questions}
}

// ChoiceView 学习者可见的选项：不带正误标记与反馈
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView 学习者可见的题目：隐藏答案、期望值与校验器
type QuestionView struct {
	ID         string             `json:"id"`
	Type       model.QuestionType `json:"type"`
	Domain     string             `json:"domain"`
	Track      string             `json:"track"`
	Lesson     string             `json:"lesson"`
	Concepts   []string           `json:"concepts"`
	Difficulty string             `json:"difficulty"`
	Prompt     string             `json:"prompt"`
	Hint       string             `json:"hint,omitempty"`
	Choices    []ChoiceView       `json:"choices,omitempty"`
	Starter    string             `json:"starter,omitempty"`
	AllowedOps []string           `json:"allowedOps,omitempty"`
}

func toQuestionView(q *model.Question) QuestionView {
	view := QuestionView{
		ID:         q.ID,
		Type:       q.Type,
		Domain:     q.Domain,
		Track:      q.Track,
		Lesson:     q.Lesson,
		Concepts:   q.Concepts,
		Difficulty: q.Difficulty,
		Prompt:     q.Prompt,
		Hint:       q.Hint,
		Starter:    q.Starter,
		AllowedOps: q.AllowedOps,
	}
	for _, choice := range q.Choices {
		view.Choices = append(view.Choices, ChoiceView{ID: choice.ID, Text: choice.Text})
	}
	return view
}

// List godoc
// @Summary 题目列表
// @Description 按领域/课程/概念/难度/关键词筛选题目
// @Tags 题库
// @Produce  json
// @Security BearerAuth
// @Param   domain query string false "领域"
// @Param   track query string false "课程轨道"
// @Param   lesson query string false "课程单元"
// @Param   difficulty query string false "难度"
// @Param   concepts query string false "概念，逗号分隔"
// @Param   search query string false "题面关键词"
// @Success 200 {object} util.Response{data=[]QuestionView}
// @Router /api/questions [get]
func (c *QuestionController) List(ctx *gin.Context) {
	filter := service.QuestionFilter{
		Domain:     ctx.Query("domain"),
		Track:      ctx.Query("track"),
		Lesson:     ctx.Query("lesson"),
		Difficulty: ctx.Query("difficulty"),
		Search:     ctx.Query("search"),
	}
	if raw := ctx.Query("concepts"); raw != "" {
		for _, concept := range strings.Split(raw, ",") {
			if concept = strings.TrimSpace(concept); concept != "" {
				filter.Concepts = append(filter.Concepts, concept)
			}
		}
	}

	questions := c.QuestionService.Filter(filter)
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, toQuestionView(q))
	}
	util.Success(ctx, views)
}

// Get godoc
// @Summary 题目详情
// @Tags 题库
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "题目 id"
// @Success 200 {object} util.Response{data=QuestionView}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/questions/{id} [get]
func (c *QuestionController) Get(ctx *gin.Context) {
	question, err := c.QuestionService.GetByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, toQuestionView(question))
}

// Lessons godoc
// @Summary 课程目录
// @Description story 模式的课程导航，按主题筛选
// @Tags 题库
// @Produce  json
// @Security BearerAuth
// @Param   theme query string false "主题"
// @Success 200 {object} util.Response{data=[]model.LessonInfo}
// @Router /api/lessons [get]
func (c *QuestionController) Lessons(ctx *gin.Context) {
	util.Success(ctx, c.QuestionService.Lessons(ctx.Query("theme")))
}
