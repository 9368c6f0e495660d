package controller

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type SessionController struct {
	SessionService *service.SessionService
}

func NewSessionController(sessions *service.SessionService) *SessionController {
	return &SessionController{SessionService: sessions}
}

// StartSessionRequest 开局请求。story 按主题顺序推进，
// practice 按筛选条件组题池
type StartSessionRequest struct {
	Mode     string `json:"mode" binding:"required,oneof=story practice"`
	Theme    string `json:"theme"`
	Domain   string `json:"domain"`
	Track    string `json:"track"`
	Lesson   string `json:"lesson"`
	Concepts string `json:"concepts"` // 逗号分隔
	OnlyWeak bool   `json:"onlyWeak"`
}

type sessionResponse struct {
	service.SessionView
	Question *QuestionView `json:"question,omitempty"`
}

func toSessionResponse(view service.SessionView) sessionResponse {
	resp := sessionResponse{SessionView: view}
	if view.Question != nil {
		q := toQuestionView(view.Question)
		resp.Question = &q
	}
	return resp
}

// Start godoc
// @Summary 开始/重置答题会话
// @Description 重建题池并硬重置会话，story 模式从书签继续
// @Tags 会话
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body StartSessionRequest true "开局参数"
// @Success 200 {object} util.Response{data=sessionResponse}
// @Router /api/session/start [post]
func (c *SessionController) Start(ctx *gin.Context) {
	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	filter := service.QuestionFilter{
		Domain: req.Domain,
		Track:  req.Track,
		Lesson: req.Lesson,
	}
	if req.Concepts != "" {
		for _, concept := range strings.Split(req.Concepts, ",") {
			if concept = strings.TrimSpace(concept); concept != "" {
				filter.Concepts = append(filter.Concepts, concept)
			}
		}
	}

	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Start(ctx.Request.Context(), claims.UserID, req.Mode, req.Theme, filter, req.OnlyWeak)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, toSessionResponse(sess.View()))
}

// Current godoc
// @Summary 当前会话状态
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=sessionResponse}
// @Failure 404 {object} util.Response "尚未开局"
// @Router /api/session [get]
func (c *SessionController) Current(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Current(claims.UserID)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, toSessionResponse(sess.View()))
}

// Submit godoc
// @Summary 提交作答
// @Description 选择题同步判分；查询题经安全检查与中继执行后判分
// @Tags 会话
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.SubmitRequest true "作答"
// @Success 200 {object} util.Response{data=service.FeedbackView}
// @Failure 400 {object} util.Response "答案为空"
// @Failure 403 {object} util.Response "查询包含不允许的子句"
// @Failure 409 {object} util.Response "已有提交在执行中"
// @Router /api/session/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	feedback, err := c.SessionService.Submit(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrEmptyAnswer):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrQueryForbidden):
			util.Error(ctx, 403, err.Error())
		case errors.Is(err, util.ErrSubmissionPending):
			util.Error(ctx, 409, err.Error())
		case errors.Is(err, util.ErrNotInFeedback), errors.Is(err, util.ErrSessionFinished):
			util.Error(ctx, 409, err.Error())
		case errors.Is(err, util.ErrExecutionFailed), errors.Is(err, util.ErrGraphUnavailable):
			util.Error(ctx, 502, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, feedback)
}

// Next godoc
// @Summary 进入下一题
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=sessionResponse}
// @Failure 409 {object} util.Response "当前不在反馈态"
// @Router /api/session/next [post]
func (c *SessionController) Next(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Next(ctx.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else if errors.Is(err, util.ErrNotInFeedback) {
			util.Error(ctx, 409, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, toSessionResponse(sess.View()))
}

// Restart godoc
// @Summary 重新开始本轮
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=sessionResponse}
// @Router /api/session/restart [post]
func (c *SessionController) Restart(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Restart(claims.UserID)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, toSessionResponse(sess.View()))
}
