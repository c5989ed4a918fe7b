package handler

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/face"
	"faceattend/internal/match"
	"faceattend/internal/metrics"
)

type livenessManager interface {
	CreateSession(ctx context.Context) (string, error)
}

type orchestrator interface {
	ProcessSession(ctx context.Context, sessionID, compareFaceID string) (match.SessionOutcome, error)
	ManualCheckIn(ctx context.Context, image []byte) (match.Result, error)
}

type faceService interface {
	Register(ctx context.Context, name string, photo []byte, contentType string) (face.RegisterResult, error)
	Delete(ctx context.Context, faceID, s3Key string) error
	List(ctx context.Context) ([]face.Entry, error)
}

type attendanceService interface {
	Today(ctx context.Context, externalImageID string) ([]attendance.Record, error)
	ResetDayCache(ctx context.Context) error
}

// Handler translates HTTP requests to service calls and service outcomes to
// the JSON contract. Soft business outcomes (not live, no face, no match)
// are 200s with success:false; upstream failures are 500s with the raw
// message.
type Handler struct {
	liveness   livenessManager
	match      orchestrator
	faces      faceService
	attendance attendanceService
	cache      *attendance.DayCache
}

// New creates a handler. cache may be nil.
func New(liveness livenessManager, orch orchestrator, faces faceService, att attendanceService, cache *attendance.DayCache) *Handler {
	return &Handler{liveness: liveness, match: orch, faces: faces, attendance: att, cache: cache}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/session", h.CreateSession)
	r.GET("/liveness-result/:sessionId", h.LivenessResult)
	r.POST("/checkin", h.ManualCheckin)
	r.POST("/index-face", h.IndexFace)
	r.GET("/list-collections", h.ListFaces)
	r.DELETE("/delete-face", h.DeleteFace)
	r.GET("/attendance", h.Attendance)
	r.POST("/attendance/clear", h.ClearAttendanceCache)
	r.GET("/healthz", h.Healthz)
}

// CreateSession starts a liveness session.
func (h *Handler) CreateSession(c *gin.Context) {
	sessionID, err := h.liveness.CreateSession(c.Request.Context())
	if err != nil {
		log.Printf("handler: create liveness session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	metrics.LivenessSessions.Inc()
	log.Printf("handler: liveness session created: %s", sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": sessionID})
}

// LivenessResult fetches a session verdict and, if live, runs face matching
// and records attendance.
func (h *Handler) LivenessResult(c *gin.Context) {
	sessionID := c.Param("sessionId")
	compareFaceID := c.Query("compareFaceId")

	outcome, err := h.match.ProcessSession(c.Request.Context(), sessionID, compareFaceID)
	if err != nil {
		log.Printf("handler: liveness result for %s: %v", sessionID, err)
		metrics.Checkins.WithLabelValues(metrics.MethodLiveness, metrics.OutcomeError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"message":   "Failed to process liveness results. Please try again.",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if !outcome.Verdict.Live {
		metrics.Checkins.WithLabelValues(metrics.MethodLiveness, metrics.OutcomeNotLive).Inc()
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"isLive":     false,
			"confidence": outcome.Verdict.Confidence,
			"reason":     outcome.Verdict.Reason,
			"message":    "Liveness verification failed. Please try again.",
		})
		return
	}

	capturedImage := gin.H{"found": false}
	if outcome.Captured != nil {
		capturedImage = gin.H{"found": true, "details": outcome.Captured}
	}

	var message string
	switch {
	case outcome.Match.Found:
		metrics.Checkins.WithLabelValues(metrics.MethodLiveness, metrics.OutcomeMatched).Inc()
		message = fmt.Sprintf("Welcome %s! Face verified with %.1f%% similarity.", outcome.Match.Name, outcome.Match.Similarity)
	case outcome.Match.Err != "":
		metrics.Checkins.WithLabelValues(metrics.MethodLiveness, metrics.OutcomeError).Inc()
		message = "Liveness verified but face matching encountered an error."
	default:
		metrics.Checkins.WithLabelValues(metrics.MethodLiveness, metrics.OutcomeNoMatch).Inc()
		message = "You are verified as a live person, but your face is not in our system."
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"isLive":        true,
		"confidence":    outcome.Verdict.Confidence,
		"faceMatch":     outcome.Match,
		"sessionId":     sessionID,
		"capturedImage": capturedImage,
		"message":       message,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// ManualCheckin matches an uploaded photo against the registry without a
// liveness proof, at the stricter threshold.
func (h *Handler) ManualCheckin(c *gin.Context) {
	photo, _, err := formPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing photo file"})
		return
	}

	result, err := h.match.ManualCheckIn(c.Request.Context(), photo)
	if err != nil {
		log.Printf("handler: manual check-in: %v", err)
		metrics.Checkins.WithLabelValues(metrics.MethodManual, metrics.OutcomeError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !result.Found {
		metrics.Checkins.WithLabelValues(metrics.MethodManual, metrics.OutcomeNoMatch).Inc()
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No match found"})
		return
	}
	metrics.Checkins.WithLabelValues(metrics.MethodManual, metrics.OutcomeMatched).Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "name": result.Name, "similarity": result.Similarity})
}

// IndexFace registers a new face: photo to the bucket, then to the registry.
func (h *Handler) IndexFace(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing name field"})
		return
	}
	photo, contentType, err := formPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing photo file"})
		return
	}

	result, err := h.faces.Register(c.Request.Context(), name, photo, contentType)
	if err != nil {
		log.Printf("handler: index face %q: %v", name, err)
		metrics.FacesIndexed.WithLabelValues(metrics.OutcomeError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !result.Indexed {
		metrics.FacesIndexed.WithLabelValues(metrics.OutcomeNoFace).Inc()
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No face detected in image"})
		return
	}
	metrics.FacesIndexed.WithLabelValues(metrics.OutcomeIndexed).Inc()
	log.Printf("handler: face indexed as %s", result.ExternalImageID)
	c.JSON(http.StatusOK, gin.H{"success": true, "name": result.ExternalImageID})
}

// ListFaces enumerates the whole registry.
func (h *Handler) ListFaces(c *gin.Context) {
	entries, err := h.faces.List(c.Request.Context())
	if err != nil {
		log.Printf("handler: list faces: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if entries == nil {
		entries = []face.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "faces": entries})
}

// DeleteFace removes a face from the registry and its backing photo.
func (h *Handler) DeleteFace(c *gin.Context) {
	var req struct {
		FaceID string `json:"faceId"`
		S3Key  string `json:"s3Key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FaceID == "" || req.S3Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing faceId or s3Key"})
		return
	}

	if err := h.faces.Delete(c.Request.Context(), req.FaceID, req.S3Key); err != nil {
		log.Printf("handler: delete face %s: %v", req.FaceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Face and image deleted successfully"})
}

// Attendance returns the identity's check-in records for the current UTC day.
func (h *Handler) Attendance(c *gin.Context) {
	externalImageID := c.Query("externalImageId")
	if externalImageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing externalImageId"})
		return
	}

	items, err := h.attendance.Today(c.Request.Context(), externalImageID)
	if err != nil {
		log.Printf("handler: attendance for %s: %v", externalImageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if items == nil {
		items = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "items": items})
}

// ClearAttendanceCache drops today's cached check-in marks. Persisted records
// are untouched.
func (h *Handler) ClearAttendanceCache(c *gin.Context) {
	if err := h.attendance.ResetDayCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance cache cleared"})
}

// Healthz reports process and cache health.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"redis":  h.cache.Healthy(c.Request.Context()),
	})
}

// formPhoto reads the multipart "photo" field into memory.
func formPhoto(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
