package controller

import (
	"judgebroker/internal/judge/language"
	"judgebroker/internal/judge/service"
	"judgebroker/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// PoolReporter exposes worker pool occupancy.
type PoolReporter interface {
	Stats() service.PoolStats
}

// JudgeController serves the language catalog and pool state.
type JudgeController struct {
	pool      PoolReporter
	languages *language.Registry
}

// NewJudgeController creates a new controller.
func NewJudgeController(pool PoolReporter, languages *language.Registry) *JudgeController {
	return &JudgeController{pool: pool, languages: languages}
}

// Languages lists the active languages.
func (h *JudgeController) Languages(c *gin.Context) {
	response.Success(c, h.languages.List())
}

// Pool returns worker pool occupancy.
func (h *JudgeController) Pool(c *gin.Context) {
	response.Success(c, h.pool.Stats())
}
