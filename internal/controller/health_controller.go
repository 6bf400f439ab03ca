package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{db: db, rdb: rdb}
}

// HealthCheck 健康检查
// @Summary 健康检查
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	sqlDB, err := c.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
	}

	if c.rdb != nil {
		if _, err := c.rdb.Ping(ctx.Request.Context()).Result(); err != nil {
			checks["redis"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "up"
		}
	}

	ctx.JSON(status, gin.H{
		"status": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}
