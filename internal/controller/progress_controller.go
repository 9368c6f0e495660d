package controller

import (
	"time"

	"github.com/gin-gonic/gin"

	"cypher_quest_backend/internal/repository"
	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type ProgressController struct {
	ProgressService *service.ProgressService
	QuestionService *service.QuestionService
	AttemptRepo     *repository.AttemptRepository
}

func NewProgressController(progress *service.ProgressService, questions *service.QuestionService, attempts *repository.AttemptRepository) *ProgressController {
	return &ProgressController{
		ProgressService: progress,
		QuestionService: questions,
		AttemptRepo:     attempts,
	}
}

// Snapshot godoc
// @Summary 进度快照
// @Description 学习者的完整进度快照，含各题作答台账与续读位置
// @Tags 进度
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.ProgressSnapshot}
// @Router /api/progress [get]
func (c *ProgressController) Snapshot(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	snap, err := c.ProgressService.Load(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// ThemeRequest 主题与环境音切换
type ThemeRequest struct {
	Theme    string `json:"theme"`
	Ambience string `json:"ambience"`
}

// SetTheme godoc
// @Summary 切换主题
// @Tags 进度
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body ThemeRequest true "主题设置"
// @Success 200 {object} util.Response{data=model.ProgressSnapshot}
// @Router /api/progress/theme [put]
func (c *ProgressController) SetTheme(ctx *gin.Context) {
	var req ThemeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	snap, err := c.ProgressService.SetTheme(ctx.Request.Context(), claims.UserID, req.Theme, req.Ambience)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// PositionRequest 续读位置更新
type PositionRequest struct {
	Theme string `json:"theme"`
	Index int    `json:"index"`
}

// SetPosition godoc
// @Summary 更新续读位置
// @Description 手动回拨/前移某主题的故事进度书签
// @Tags 进度
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body PositionRequest true "位置设置"
// @Success 200 {object} util.Response{data=model.ProgressSnapshot}
// @Router /api/progress/position [put]
func (c *ProgressController) SetPosition(ctx *gin.Context) {
	var req PositionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	snap, err := c.ProgressService.UpdatePosition(ctx.Request.Context(), claims.UserID, req.Theme, req.Index)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// WeakQuestionView 弱点题及其当前分数
type WeakQuestionView struct {
	QuestionID string  `json:"questionId"`
	Score      float64 `json:"score"`
}

// Weak godoc
// @Summary 弱点题排行
// @Description 按弱点分降序返回需要复习的题目
// @Tags 进度
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]WeakQuestionView}
// @Router /api/progress/weak [get]
func (c *ProgressController) Weak(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	snap, err := c.ProgressService.Load(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	now := time.Now()
	pool := c.ProgressService.WeakPool(c.QuestionService.All(), snap, now)
	views := make([]WeakQuestionView, 0, len(pool))
	for _, q := range pool {
		score := c.ProgressService.WeaknessScore(snap.Records[q.ID], now)
		if score <= 0 {
			continue
		}
		views = append(views, WeakQuestionView{QuestionID: q.ID, Score: score})
	}
	util.Success(ctx, views)
}

// StatsView 作答流水统计
type StatsView struct {
	TotalAttempts int64                     `json:"totalAttempts"`
	Questions     []repository.QuestionStat `json:"questions"`
}

// Stats godoc
// @Summary 作答流水统计
// @Description 总作答次数与按题目聚合的历史正确率
// @Tags 进度
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=StatsView}
// @Router /api/progress/stats [get]
func (c *ProgressController) Stats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	total, err := c.AttemptRepo.CountByUser(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	stats, err := c.AttemptRepo.StatsByUser(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, StatsView{TotalAttempts: total, Questions: stats})
}
