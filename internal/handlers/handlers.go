package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/matcha-check/internal/auth"
	"github.com/example/matcha-check/internal/capture"
	"github.com/example/matcha-check/internal/matcha"
	"github.com/example/matcha-check/internal/repository"
	"github.com/example/matcha-check/internal/usecase"
)

// MaxUploadSize is the largest accepted photo, in bytes.
const MaxUploadSize = 10 << 20

// multipartOverhead covers boundaries and form fields around the image part.
const multipartOverhead = 1 << 20

var allowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// RatingService is the use case surface used by the HTTP layer.
type RatingService interface {
	StartCapture(ctx context.Context, userID string) (*capture.Session, error)
	AnalyzeImage(ctx context.Context, userID, analysisID string, imageBytes []byte) (string, *capture.Session, error)
	GetAnalysis(ctx context.Context, userID, analysisID string) (*capture.Session, error)
	Retake(ctx context.Context, userID, analysisID string) error
	SubmitRating(ctx context.Context, userID string, input usecase.RatingInput) (*repository.RatingRecord, error)
	GetRating(ctx context.Context, id uint) (*repository.RatingRecord, error)
	ListRatings(ctx context.Context, limit, offset int) ([]*repository.RatingRecord, error)
	GetDuplicateReport(ctx context.Context, userID string, id uint) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

type submitRatingRequest struct {
	AnalysisID string  `json:"analysis_id" binding:"required"`
	UserScore  float64 `json:"user_score" binding:"required"`
	Comment    string  `json:"comment"`
	Location   string  `json:"location"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Routes that create
// or reveal per-user data sit behind authMiddleware.
func RegisterRoutes(router *gin.Engine, svc RatingService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ratings", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))

		ratings, err := svc.ListRatings(c.Request.Context(), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ratings": ratings})
	})

	router.GET("/ratings/:id", func(c *gin.Context) {
		id, ok := ratingID(c)
		if !ok {
			return
		}
		rating, err := svc.GetRating(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rating)
	})

	router.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	authorized := router.Group("/", authMiddleware)

	authorized.POST("/analyze", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)
		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
		if err != nil || !allowedContentTypes[mediaType] {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		analysisID, session, err := svc.AnalyzeImage(c.Request.Context(), userID, c.PostForm("analysis_id"), data)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionResponse(analysisID, session))
	})

	authorized.POST("/analyses", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		session, err := svc.StartCapture(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sessionResponse(session.ID, session))
	})

	authorized.GET("/analyses/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		session, err := svc.GetAnalysis(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionResponse(session.ID, session))
	})

	authorized.DELETE("/analyses/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		if err := svc.Retake(c.Request.Context(), userID, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	authorized.POST("/ratings", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		var req submitRatingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "analysis_id and user_score are required"})
			return
		}

		rating, err := svc.SubmitRating(c.Request.Context(), userID, usecase.RatingInput{
			AnalysisID: req.AnalysisID,
			UserScore:  req.UserScore,
			Comment:    req.Comment,
			Location:   req.Location,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rating)
	})

	authorized.GET("/ratings/:id/duplicates", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		id, ok := ratingID(c)
		if !ok {
			return
		}
		report, err := svc.GetDuplicateReport(c.Request.Context(), userID, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"rating":     report.Rating,
			"duplicates": report.Duplicates,
		})
	})
}

func sessionResponse(analysisID string, session *capture.Session) gin.H {
	body := gin.H{
		"analysis_id": analysisID,
		"step":        session.Step,
		"image_url":   session.ImageURL,
	}
	if session.Result != nil {
		body["cup_found"] = session.Result.CupFound
		body["color_score"] = session.Result.ColorScore
		body["max_score"] = session.Result.MaxScore
		body["avg_color"] = session.Result.AvgColor
	}
	return body
}

func ratingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rating id"})
		return 0, false
	}
	return uint(id), true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrAnalysisNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, usecase.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, usecase.ErrAnalysisNotReady), errors.Is(err, usecase.ErrAnalysisDiscarded),
		errors.Is(err, capture.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidScore), errors.Is(err, usecase.ErrTextTooLong):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, matcha.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is empty"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
