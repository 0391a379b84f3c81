package controller

import (
	"context"
	"strconv"

	commonmw "judgebroker/internal/common/http/middleware"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/service"
	"judgebroker/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemReader serves problem details.
type ProblemReader interface {
	Get(ctx context.Context, problemID int64) (service.ProblemDetail, error)
}

// TestCaseWriter is the admin write path for test cases.
type TestCaseWriter interface {
	Create(ctx context.Context, problemID int64, input service.NewTestCase) (model.TestCase, error)
	Delete(ctx context.Context, problemID, testCaseID int64) error
}

// StatsRecalculator recomputes problem statistics.
type StatsRecalculator interface {
	RecalculateDirty(ctx context.Context) (int, error)
	RecalculateAll(ctx context.Context) (int, error)
}

// ProblemController handles problem and test case HTTP endpoints.
type ProblemController struct {
	problems  ProblemReader
	testcases TestCaseWriter
	stats     StatsRecalculator
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problems ProblemReader, testcases TestCaseWriter, stats StatsRecalculator) *ProblemController {
	return &ProblemController{problems: problems, testcases: testcases, stats: stats}
}

// Register mounts the problem routes. Reads are public; writes require the admin role.
func (h *ProblemController) Register(group *gin.RouterGroup, auth *commonmw.Authenticator) {
	admin := commonmw.AuthMiddleware(auth, commonmw.RoleAdmin)
	group.GET("/:id", h.Get)
	group.POST("/:id/testcases", admin, h.CreateTestCase)
	group.DELETE("/:id/testcases/:testcase_id", admin, h.DeleteTestCase)
	group.POST("/stats/recalculate", admin, h.RecalculateStats)
}

// Get returns the problem with statistics and display-safe test cases.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	detail, err := h.problems.Get(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// CreateTestCase appends one test case to the problem.
func (h *ProblemController) CreateTestCase(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var req CreateTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	points := int64(1)
	if req.Points != nil {
		points = *req.Points
	}

	created, err := h.testcases.Create(c.Request.Context(), problemID, service.NewTestCase{
		InputData:      req.InputData,
		ExpectedOutput: req.ExpectedOutput,
		IsSample:       req.IsSample,
		Points:         points,
		Label:          req.Label,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, created)
}

// DeleteTestCase removes a test case unless a submission for the problem is running.
func (h *ProblemController) DeleteTestCase(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	testCaseID, err := strconv.ParseInt(c.Param("testcase_id"), 10, 64)
	if err != nil || testCaseID <= 0 {
		response.BadRequest(c, "Invalid test case id")
		return
	}
	if err := h.testcases.Delete(c.Request.Context(), problemID, testCaseID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"test_case_id": testCaseID})
}

// RecalculateStats drains the dirty set, or recomputes every problem with ?all=true.
func (h *ProblemController) RecalculateStats(c *gin.Context) {
	var (
		n   int
		err error
	)
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		n, err = h.stats.RecalculateAll(c.Request.Context())
	} else {
		n, err = h.stats.RecalculateDirty(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"recalculated": n})
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		return 0, false
	}
	return problemID, true
}

// CreateTestCaseRequest defines the test case creation payload. Points default to 1.
type CreateTestCaseRequest struct {
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	Points         *int64 `json:"points"`
	Label          string `json:"label"`
}
