package controller

import (
	"io"

	"github.com/gin-gonic/gin"

	"cypher_quest_backend/internal/repository"
	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type ImportController struct {
	ImportService *service.ImportService
	ArchiveRepo   *repository.ArchiveRepository
}

func NewImportController(imports *service.ImportService, archives *repository.ArchiveRepository) *ImportController {
	return &ImportController{ImportService: imports, ArchiveRepo: archives}
}

// Seed godoc
// @Summary 写入标准种子数据
// @Description 向练习图谱写入与题库期望答案对应的标准数据集
// @Tags 数据管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ImportSummary}
// @Failure 502 {object} util.Response "图数据库写入失败"
// @Router /api/admin/seed [post]
func (c *ImportController) Seed(ctx *gin.Context) {
	summary, err := c.ImportService.Seed(ctx.Request.Context())
	if err != nil {
		util.Error(ctx, 502, err.Error())
		return
	}
	util.Success(ctx, summary)
}

// Reset godoc
// @Summary 清空练习图谱
// @Tags 数据管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Failure 502 {object} util.Response "图数据库写入失败"
// @Router /api/admin/reset [post]
func (c *ImportController) Reset(ctx *gin.Context) {
	if err := c.ImportService.Reset(ctx.Request.Context()); err != nil {
		util.Error(ctx, 502, err.Error())
		return
	}
	util.Success(ctx, gin.H{"reset": true})
}

// ImportJSON godoc
// @Summary 导入 JSON 数据集
// @Description 批量合并用户/商品/行为事件，原始载荷归档到对象存储
// @Tags 数据管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.ImportPayload true "数据集"
// @Success 200 {object} util.Response{data=service.ImportSummary}
// @Failure 400 {object} util.Response "载荷为空、超限或含未知行为"
// @Router /api/admin/import [post]
func (c *ImportController) ImportJSON(ctx *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 8<<20))
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	summary, err := c.ImportService.ImportJSON(ctx.Request.Context(), claims.UserID, raw)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, summary)
}

// ImportCSV godoc
// @Summary 导入行为事件 CSV
// @Description 三列 userId,itemId,action，multipart 字段名 file
// @Tags 数据管理
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   file formData file true "CSV 文件"
// @Success 200 {object} util.Response{data=service.ImportSummary}
// @Failure 400 {object} util.Response "CSV 格式错误"
// @Router /api/admin/import/csv [post]
func (c *ImportController) ImportCSV(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少 file 字段")
		return
	}
	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	claims := util.GetUserFromContext(ctx)
	summary, err := c.ImportService.ImportCSV(ctx.Request.Context(), claims.UserID, src)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, summary)
}

// Archives godoc
// @Summary 最近导入记录
// @Description 历史导入的归档元数据，按时间倒序
// @Tags 数据管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.ImportArchive}
// @Router /api/admin/imports [get]
func (c *ImportController) Archives(ctx *gin.Context) {
	archives, err := c.ArchiveRepo.ListRecent(50)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, archives)
}
