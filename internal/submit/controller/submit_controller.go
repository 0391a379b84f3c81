package controller

import (
	"context"
	"strings"
	"time"

	commonmw "judgebroker/internal/common/http/middleware"
	judgemodel "judgebroker/internal/judge/model"
	"judgebroker/internal/submit/model"
	"judgebroker/internal/submit/service"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"
	"judgebroker/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultLiveInterval = time.Second
	liveWriteTimeout    = 5 * time.Second
)

// SubmissionService is the part of the submit service the HTTP layer uses.
type SubmissionService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*model.Submission, error)
	GetStatus(ctx context.Context, submissionID string) (*model.Submission, error)
	GetTestcaseResults(ctx context.Context, submissionID string) ([]judgemodel.TestcaseResult, error)
	Cancel(ctx context.Context, submissionID string) error
	Watch(ctx context.Context, submissionID string, interval time.Duration, fn func(service.LiveUpdate) error) error
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService SubmissionService
	liveInterval  time.Duration
	upgrader      websocket.Upgrader
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService SubmissionService, liveInterval time.Duration) *SubmitController {
	if liveInterval <= 0 {
		liveInterval = defaultLiveInterval
	}
	return &SubmitController{
		submitService: submitService,
		liveInterval:  liveInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Register mounts the submission routes on group. Every route requires a token;
// cancel requires the admin role.
func (h *SubmitController) Register(group *gin.RouterGroup, auth *commonmw.Authenticator) {
	authed := commonmw.AuthMiddleware(auth)
	group.POST("", authed, h.Create)
	group.GET("/:id", authed, h.GetStatus)
	group.GET("/:id/results", authed, h.GetResults)
	group.GET("/:id/live", authed, h.Live)
	group.POST("/:id/cancel", commonmw.AuthMiddleware(auth, commonmw.RoleAdmin), h.Cancel)
}

// Create handles submission requests. The verdict is produced asynchronously.
func (h *SubmitController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	userID, ok := commonmw.CurrentUser(c)
	if !ok {
		response.ErrorWithCode(c, pkgerrors.Unauthorized, "")
		return
	}
	if req.UserID != 0 && req.UserID != userID {
		if !commonmw.IsAdmin(c) {
			response.ErrorWithCode(c, pkgerrors.PermissionDenied, "cannot submit for another user")
			return
		}
		userID = req.UserID
	}

	submission, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ProblemID:      req.ProblemID,
		UserID:         userID,
		LanguageID:     req.LanguageID,
		Code:           req.Code,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmitResponse{
		SubmissionID:   submission.ID,
		Status:         string(submission.Status),
		SubmissionTime: submission.CreatedAt,
	})
}

// GetStatus returns the latest snapshot of one submission.
func (h *SubmitController) GetStatus(c *gin.Context) {
	submission, ok := h.visibleSubmission(c)
	if !ok {
		return
	}
	submission.Code = ""
	response.Success(c, submission)
}

// GetResults returns the per-test rows persisted so far.
func (h *SubmitController) GetResults(c *gin.Context) {
	submission, ok := h.visibleSubmission(c)
	if !ok {
		return
	}
	rows, err := h.submitService.GetTestcaseResults(c.Request.Context(), submission.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ResultsResponse{
		SubmissionID: submission.ID,
		Status:       string(submission.Status),
		Results:      rows,
	})
}

// Cancel aborts a queued or running submission.
func (h *SubmitController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if err := h.submitService.Cancel(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"submission_id": submissionID})
}

// Live upgrades to a WebSocket and streams LiveUpdate frames until the submission
// is terminal or the client goes away.
func (h *SubmitController) Live(c *gin.Context) {
	submission, ok := h.visibleSubmission(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(logger.WithSubmission(c.Request.Context(), submission.ID))
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.submitService.Watch(ctx, submission.ID, h.liveInterval, func(update service.LiveUpdate) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(update)
	})
	closeCode, reason := websocket.CloseNormalClosure, "done"
	if err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "live stream stopped", zap.Error(err))
		closeCode, reason = websocket.CloseInternalServerErr, "stream failed"
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), time.Now().Add(time.Second))
}

func (h *SubmitController) visibleSubmission(c *gin.Context) (*model.Submission, bool) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return nil, false
	}
	submission, err := h.submitService.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	userID, _ := commonmw.CurrentUser(c)
	if submission.UserID != userID && !commonmw.IsAdmin(c) {
		// Hide the existence of other users' submissions.
		response.Error(c, pkgerrors.New(pkgerrors.SubmissionNotFound))
		return nil, false
	}
	return submission, true
}

// SubmitRequest defines submission payload. UserID is honoured for admins only.
type SubmitRequest struct {
	ProblemID  int64  `json:"problem_id" binding:"required"`
	LanguageID string `json:"language_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
	UserID     int64  `json:"user_id"`
}

// SubmitResponse defines submission response payload.
type SubmitResponse struct {
	SubmissionID   string    `json:"submission_id"`
	Status         string    `json:"status"`
	SubmissionTime time.Time `json:"submission_time"`
}

// ResultsResponse defines the per-test results payload.
type ResultsResponse struct {
	SubmissionID string                      `json:"submission_id"`
	Status       string                      `json:"status"`
	Results      []judgemodel.TestcaseResult `json:"results"`
}
