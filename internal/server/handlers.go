package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/prompt"
	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/internal/security"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/internal/wizard"
)

var errBusy = errors.New("generation already in progress")

type formatRequest struct {
	Format string `json:"format"`
	Author string `json:"author"`
}

type worldRequest struct {
	EraPlace       string              `json:"eraPlace"`
	WorldRules     string              `json:"worldRules"`
	StoryDirection string              `json:"storyDirection"`
	Characters     []session.Character `json:"characters"`
}

type chapterRequest struct {
	Topic          string `json:"topic"`
	OutputLanguage string `json:"outputLanguage"`
	APIKey         string `json:"apiKey"`
}

type chapterView struct {
	Number  int    `json:"number"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

func (s *Server) getSession(c *gin.Context) {
	rec, err := s.controller.CurrentRecord(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) resetSession(c *gin.Context) {
	if err := s.controller.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) submitFormat(c *gin.Context) {
	var req formatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := s.controller.SubmitFormat(c.Request.Context(), wizard.FormatInput{
		Format: req.Format,
		Author: req.Author,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "next": "/steps/2"})
}

func (s *Server) submitWorld(c *gin.Context) {
	var req worldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rec, err := s.controller.SubmitWorld(c.Request.Context(), wizard.WorldInput{
		EraPlace:       req.EraPlace,
		WorldRules:     req.WorldRules,
		StoryDirection: req.StoryDirection,
		Characters:     req.Characters,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "next": "/steps/3"})
}

func (s *Server) enterWriting(c *gin.Context) {
	rec, expired, err := s.controller.EnterWriting(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "expired": expired})
}

func (s *Server) listChapters(c *gin.Context) {
	rec, err := s.controller.CurrentRecord(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	chapters := make([]chapterView, len(rec.GeneratedChapters))
	for i, ch := range rec.GeneratedChapters {
		chapters[i] = chapterView{Number: i + 1, Topic: ch.Topic, Content: ch.Content}
	}
	c.JSON(http.StatusOK, gin.H{"chapters": chapters, "lastGenerated": rec.LastGenerated})
}

func (s *Server) generateChapter(c *gin.Context) {
	var req chapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	key := strings.TrimSpace(c.GetHeader(APIKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.APIKey)
	}

	if !s.generating.TryLock() {
		s.fail(c, errBusy)
		return
	}
	defer s.generating.Unlock()

	res, err := s.controller.GenerateChapter(c.Request.Context(), wizard.GenerateInput{
		Topic:    req.Topic,
		Language: req.OutputLanguage,
		APIKey:   key,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"chapter": chapterView{Number: res.Number, Topic: res.Chapter.Topic, Content: res.Chapter.Content},
		"expired": res.Expired,
		"usage": gin.H{
			"promptTokens": res.Response.Usage.PromptTokens,
			"outputTokens": res.Response.Usage.OutputTokens,
			"totalTokens":  res.Response.Usage.TotalTokens,
		},
	})
}

func (s *Server) clearChapters(c *gin.Context) {
	if err := s.controller.ClearHistory(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportBook(c *gin.Context) {
	kind, err := export.ParseKind(c.Param("kind"))
	if err != nil {
		s.fail(c, err)
		return
	}

	rec, err := s.controller.CurrentRecord(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	data, err := export.Build(c.Request.Context(), kind, export.FromRecord(rec), s.renderer)
	if err != nil {
		s.fail(c, err)
		return
	}

	filename := export.DefaultFilename(kind)
	if q := strings.TrimSpace(c.Query("filename")); q != "" {
		filename = security.SanitizeFilename(q)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, kind.ContentType(), data)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)

	body := gin.H{"error": err.Error()}
	var gate *wizard.GateError
	if errors.As(err, &gate) {
		body["missing"] = gate.Missing
		body["redirect"] = fmt.Sprintf("/steps/%d", int(gate.RedirectStep))
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, wizard.ErrIncompleteSession), errors.Is(err, errBusy):
		return http.StatusConflict
	case errors.Is(err, provider.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrEmptyResponse), errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, export.ErrNoRenderer):
		return http.StatusNotImplemented
	case errors.Is(err, wizard.ErrFormatRequired),
		errors.Is(err, wizard.ErrAuthorRequired),
		errors.Is(err, wizard.ErrNoCharacters),
		errors.Is(err, wizard.ErrCharacterName),
		errors.Is(err, prompt.ErrEmptyTopic),
		errors.Is(err, prompt.ErrEmptyLanguage),
		errors.Is(err, provider.ErrAPIKeyRequired),
		errors.Is(err, export.ErrNoChapters),
		errors.Is(err, export.ErrUnknownKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
