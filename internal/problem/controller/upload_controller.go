package controller

import (
	"context"
	"io"
	"net/http"
	"strings"

	commonmw "judgebroker/internal/common/http/middleware"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/service"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ArchiveIngester turns test case archives into test cases.
type ArchiveIngester interface {
	MaxArchiveBytes() int64
	IngestArchive(ctx context.Context, problemID int64, data []byte) ([]model.TestCase, error)
	IngestObject(ctx context.Context, problemID int64, objectKey string) ([]model.TestCase, error)
	PrepareUpload(ctx context.Context, problemID int64) (service.UploadTicket, error)
	PurgeArchives(ctx context.Context, problemID int64) error
}

// ArchiveController handles test case archive endpoints.
type ArchiveController struct {
	ingest ArchiveIngester
}

func NewArchiveController(ingest ArchiveIngester) *ArchiveController {
	return &ArchiveController{ingest: ingest}
}

// Register mounts the archive routes; all of them require the admin role.
func (h *ArchiveController) Register(group *gin.RouterGroup, auth *commonmw.Authenticator) {
	admin := commonmw.AuthMiddleware(auth, commonmw.RoleAdmin)
	group.POST("/:id/testcases/archive", admin, h.Upload)
	group.POST("/:id/testcases/archive/uploads", admin, h.Prepare)
	group.POST("/:id/testcases/archive/ingest", admin, h.IngestObject)
	group.DELETE("/:id/testcases/archive", admin, h.Purge)
}

// Upload ingests an archive sent as multipart field "file" or as the raw body.
func (h *ArchiveController) Upload(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	maxBytes := h.ingest.MaxArchiveBytes()
	// Leave room for multipart framing around the archive itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	var (
		reader io.Reader = c.Request.Body
		closer io.Closer
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			response.BadRequest(c, "file is required")
			return
		}
		f, err := file.Open()
		if err != nil {
			response.BadRequest(c, "file is unreadable")
			return
		}
		reader, closer = f, f
	}
	if closer != nil {
		defer closer.Close()
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		response.Error(c, pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "archive exceeds %d bytes", maxBytes))
		return
	}
	if int64(len(data)) > maxBytes {
		response.Error(c, pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "archive exceeds %d bytes", maxBytes))
		return
	}

	created, err := h.ingest.IngestArchive(c.Request.Context(), problemID, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, IngestResponse{ProblemID: problemID, Created: len(created), TestCases: created})
}

// Prepare issues a presigned URL for uploading an archive to object storage.
func (h *ArchiveController) Prepare(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	ticket, err := h.ingest.PrepareUpload(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ticket)
}

// IngestObject ingests an archive already uploaded to object storage.
func (h *ArchiveController) IngestObject(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var req IngestObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	created, err := h.ingest.IngestObject(c.Request.Context(), problemID, req.ObjectKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, IngestResponse{ProblemID: problemID, Created: len(created), TestCases: created})
}

// Purge removes stored archives for a problem. Removal may finish asynchronously.
func (h *ArchiveController) Purge(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	if err := h.ingest.PurgeArchives(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"problem_id": problemID})
}

type IngestObjectRequest struct {
	ObjectKey string `json:"object_key" binding:"required"`
}

type IngestResponse struct {
	ProblemID int64            `json:"problem_id"`
	Created   int              `json:"created"`
	TestCases []model.TestCase `json:"test_cases"`
}
