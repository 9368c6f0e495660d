package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/internal/util"
)

type HealthController struct {
	DB           *gorm.DB
	Redis        *redis.Client
	RelayService *service.RelayService
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, relay *service.RelayService) *HealthController {
	return &HealthController{DB: db, Redis: rdb, RelayService: relay}
}

// @Summary 健康检查
// @Description 检查数据库/Redis/图数据库各组件状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	components := gin.H{}
	healthy := true

	sqlDB, err := c.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		components["database"] = "down"
		healthy = false
	} else {
		components["database"] = "up"
	}

	if err := c.Redis.Ping(ctx.Request.Context()).Err(); err != nil {
		components["redis"] = "down"
		healthy = false
	} else {
		components["redis"] = "up"
	}

	// 图数据库降级不算整体不健康，中继有兜底通道
	if ok, _ := c.RelayService.Health(ctx.Request.Context()); ok {
		components["graph"] = "up"
	} else {
		components["graph"] = "degraded"
	}

	if !healthy {
		util.Error(ctx, http.StatusServiceUnavailable, "component unavailable")
		return
	}
	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
