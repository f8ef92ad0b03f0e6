package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/utils"
)

// multipart overhead allowed on top of the file cap
const formSlack = 1 << 20

type AnalysisHandler struct {
	svc            services.AnalysisService
	maxUploadBytes int64
}

func NewAnalysisHandler(svc services.AnalysisService, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

type SubmitAnalysisResponse struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Submit accepts a multipart form: file, question or question_id, and the
// optional api_key, model and stride fields.
func (h *AnalysisHandler) Submit(c *gin.Context) {
	const op = "AnalysisHandler.Submit"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formSlack)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, utils.E(utils.CodeTooLarge, op, "file exceeds the upload limit", err))
			return
		}
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file is required", err))
		return
	}

	stride := 0
	if v := strings.TrimSpace(c.PostForm("stride")); v != "" {
		stride, err = strconv.Atoi(v)
		if err != nil || stride < 1 {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "stride must be a positive integer", err))
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable file", err))
		return
	}
	defer f.Close()

	snap, err := h.svc.Submit(c.Request.Context(), services.SubmitInput{
		UserID:     userID,
		QuestionID: c.PostForm("question_id"),
		Question:   c.PostForm("question"),
		FileName:   fh.Filename,
		Size:       fh.Size,
		File:       f,
		APIKey:     strings.TrimSpace(c.PostForm("api_key")),
		Model:      strings.TrimSpace(c.PostForm("model")),
		Stride:     stride,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitAnalysisResponse{
		SessionID: snap.SessionID,
		Stage:     snap.Stage,
		Question:  snap.Question,
		CreatedAt: snap.CreatedAt,
		ExpiresAt: snap.ExpiresAt,
	})
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID, ok := sessionIDParam(c, "AnalysisHandler.Get")
	if !ok {
		return
	}

	snap, err := h.svc.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *AnalysisHandler) Discard(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID, ok := sessionIDParam(c, "AnalysisHandler.Discard")
	if !ok {
		return
	}

	if err := h.svc.Discard(c.Request.Context(), userID, sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
