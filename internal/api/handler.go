// Package api exposes the power service over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"powersvc/adapters/excel"
	"powersvc/app"
	"powersvc/domain/design"
	"powersvc/internal"
	apperrors "powersvc/internal/errors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// PowerHandler handles the power, sample size, detectable difference and
// matrix requests
type PowerHandler struct {
	service      *app.PowerService
	logger       *internal.Logger
	maxBodyBytes int64
}

// NewPowerHandler creates a new power handler. maxBodyBytes <= 0 disables
// the request body limit.
func NewPowerHandler(service *app.PowerService, logger *internal.Logger, maxBodyBytes int64) *PowerHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PowerHandler{service: service, logger: logger, maxBodyBytes: maxBodyBytes}
}

// Register mounts the routes on r
func (h *PowerHandler) Register(r gin.IRouter) {
	r.Use(h.limitBody)
	r.POST("/power", h.compute(h.service.Power))
	r.POST("/samplesize", h.compute(h.service.SampleSize))
	r.POST("/difference", h.compute(h.service.DetectableDifference))
	r.POST("/matrix", h.Matrices)
	r.POST("/power/report.xlsx", h.PowerReport)
}

// NewRouter builds the gin engine serving the power routes
func NewRouter(h *PowerHandler, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), h.accessLog)
	h.Register(router)
	return router
}

type computeFunc func(ctx context.Context, d *design.StudyDesign) (*app.PowerResponse, error)

func (h *PowerHandler) compute(fn computeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := h.bindDesign(c)
		if !ok {
			return
		}
		resp, err := fn(c.Request.Context(), d)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Matrices returns the assembled matrices of a design without computing power
func (h *PowerHandler) Matrices(c *gin.Context) {
	d, ok := h.bindDesign(c)
	if !ok {
		return
	}
	resp, err := h.service.Matrices(c.Request.Context(), d)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PowerReport computes power and returns the results as an xlsx workbook
func (h *PowerHandler) PowerReport(c *gin.Context) {
	d, ok := h.bindDesign(c)
	if !ok {
		return
	}
	resp, err := h.service.Power(c.Request.Context(), d)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := excel.WriteReport(&buf, resp.Results); err != nil {
		h.writeError(c, apperrors.InternalError(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="power-`+resp.RequestID.String()+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *PowerHandler) bindDesign(c *gin.Context) (*design.StudyDesign, bool) {
	var d design.StudyDesign
	if err := c.ShouldBindJSON(&d); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("rejected %d byte request body", tooLarge.Limit)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "Study design too large",
				Code:  apperrors.CodeBadInput,
			})
			return nil, false
		}
		h.logger.Warn("invalid study design body: %v", err)
		h.writeError(c, apperrors.InvalidDesign())
		return nil, false
	}
	return &d, true
}

// writeError sends client errors with their capped message and hides
// everything else behind the generic internal message
func (h *PowerHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if apperrors.IsClientError(err) {
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: apperrors.ClientMessage(err),
		Code:  apperrors.GetCode(err),
	})
}

func (h *PowerHandler) limitBody(c *gin.Context) {
	if h.maxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	c.Next()
}

func (h *PowerHandler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
}
