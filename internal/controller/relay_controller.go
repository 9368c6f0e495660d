package controller

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type RelayController struct {
	RelayService    *service.RelayService
	QuestionService *service.QuestionService
	GradingService  *service.GradingService
}

func NewRelayController(relay *service.RelayService, questions *service.QuestionService, grading *service.GradingService) *RelayController {
	return &RelayController{
		RelayService:    relay,
		QuestionService: questions,
		GradingService:  grading,
	}
}

// RunRequest 自由查询请求
type RunRequest struct {
	Query  string                 `json:"query" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// SubmitQueryRequest 带题目上下文的查询请求，服务端顺带判分
type SubmitQueryRequest struct {
	QuestionID string                 `json:"questionId" binding:"required"`
	Query      string                 `json:"query" binding:"required"`
	Params     map[string]interface{} `json:"params"`
}

// Run godoc
// @Summary 执行只读查询
// @Description 经过安全过滤后转发到图数据库，自动附加默认 LIMIT
// @Tags 查询中继
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body RunRequest true "查询"
// @Success 200 {object} util.Response{data=service.ExecutionResult}
// @Failure 403 {object} util.Response "查询包含被禁止的写入关键字"
// @Failure 502 {object} util.Response "后端执行失败"
// @Router /api/run [post]
func (c *RelayController) Run(ctx *gin.Context) {
	var req RunRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.RelayService.Execute(ctx.Request.Context(), req.Query, req.Params)
	if err != nil {
		if errors.Is(err, util.ErrQueryForbidden) {
			util.Error(ctx, 403, err.Error())
		} else {
			util.Error(ctx, 502, err.Error())
		}
		return
	}
	util.Success(ctx, result)
}

// Submit godoc
// @Summary 执行查询并按题目判分
// @Description 查询结果归一化后按题目期望值判分，返回判分结果与结果行
// @Tags 查询中继
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body SubmitQueryRequest true "查询与题目"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/submit [post]
func (c *RelayController) Submit(ctx *gin.Context) {
	var req SubmitQueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	question, err := c.QuestionService.GetByID(req.QuestionID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	result, err := c.RelayService.Execute(ctx.Request.Context(), req.Query, req.Params)
	if err != nil {
		if errors.Is(err, util.ErrQueryForbidden) {
			util.Error(ctx, 403, err.Error())
		} else {
			util.Error(ctx, 502, err.Error())
		}
		return
	}

	grade := c.GradingService.GradeRows(question, result.Rows)
	util.Success(ctx, gin.H{
		"questionId": question.ID,
		"grade":      grade,
		"rows":       result.Rows,
		"rowCount":   result.RowCount,
		"degraded":   result.Degraded,
	})
}

// Health godoc
// @Summary 中继连通性探测
// @Tags 查询中继
// @Produce  json
// @Success 200 {object} util.Response
// @Router /api/relay/health [get]
func (c *RelayController) Health(ctx *gin.Context) {
	ok, message := c.RelayService.Health(ctx.Request.Context())
	util.Success(ctx, gin.H{"ok": ok, "message": message})
}

// Traces godoc
// @Summary 最近的查询执行诊断记录
// @Tags 查询中继
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.ExecutionTrace}
// @Router /api/admin/relay/traces [get]
func (c *RelayController) Traces(ctx *gin.Context) {
	util.Success(ctx, c.RelayService.RecentTraces(0))
}
