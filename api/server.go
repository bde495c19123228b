// Package api serves the HTTP interface with gin.
package api

import (
	"context"
	"io"
	"net/http"

	"ImageInsightServer/analysis"
	"ImageInsightServer/auth"
	"ImageInsightServer/detection"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const DefaultMaxUploadBytes = 10 << 20

type Accounts interface {
	Register(ctx context.Context, email, password, confirmation string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type Identifier interface {
	Identify(header string) auth.Identity
}

type Analyzer interface {
	Analyse(ctx context.Context, raw []byte, id auth.Identity) (analysis.Result, error)
	Describe(ctx context.Context, raw []byte) (string, error)
	Detect(ctx context.Context, raw []byte) ([]detection.Detection, error)
}

type Historian interface {
	History(ctx context.Context, id auth.Identity) ([]analysis.Entry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Accounts   Accounts
	Identifier Identifier
	Analyzer   Analyzer
	History    Historian
	Store      Pinger
	Log        *zap.Logger
	// MaxUploadBytes caps the image part of multipart uploads.
	MaxUploadBytes int64
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{deps: deps, log: deps.Log}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.deps.MaxUploadBytes
	r.Use(recovery(s.log), requestLog(s.log), metrics(), cors())

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/healthz", s.healthz)
	r.POST("/register", s.register)
	r.POST("/login", s.login)
	r.POST("/analyse", s.analyse)
	r.POST("/describe", s.describe)
	r.POST("/detect", s.detect)
	r.GET("/history", s.history)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) register(c *gin.Context) {
	userID, err := s.deps.Accounts.Register(c.Request.Context(),
		c.PostForm("email"), c.PostForm("password"), c.PostForm("password_confirmation"))
	if err != nil {
		countAuth("register_failed")
		s.writeError(c, err)
		return
	}
	countAuth("registered")
	c.JSON(http.StatusCreated, gin.H{"user_id": userID})
}

func (s *Server) login(c *gin.Context) {
	token, err := s.deps.Accounts.Login(c.Request.Context(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		countAuth("login_failed")
		s.writeError(c, err)
		return
	}
	countAuth("login")
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

func (s *Server) analyse(c *gin.Context) {
	raw, ok := s.readImage(c)
	if !ok {
		return
	}
	id := s.deps.Identifier.Identify(c.GetHeader("Authorization"))
	res, err := s.deps.Analyzer.Analyse(c.Request.Context(), raw, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) describe(c *gin.Context) {
	raw, ok := s.readImage(c)
	if !ok {
		return
	}
	description, err := s.deps.Analyzer.Describe(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"description": description})
}

func (s *Server) detect(c *gin.Context) {
	raw, ok := s.readImage(c)
	if !ok {
		return
	}
	detections, err := s.deps.Analyzer.Detect(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detections)
}

func (s *Server) history(c *gin.Context) {
	id := s.deps.Identifier.Identify(c.GetHeader("Authorization"))
	if id.State == auth.InvalidToken {
		s.log.Info("invalid token on history, returning empty list", zap.Error(id.Err))
	}
	entries, err := s.deps.History.History(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": entries})
}

// readImage reads the "image" multipart part, writing a 400 when it is
// missing, empty or too large.
func (s *Server) readImage(c *gin.Context) ([]byte, bool) {
	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}
	if header.Size > s.deps.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is too large"})
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	defer file.Close()
	raw, err := io.ReadAll(io.LimitReader(file, s.deps.MaxUploadBytes))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is empty"})
		return nil, false
	}
	return raw, true
}
