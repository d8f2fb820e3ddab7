// Package server exposes a workspace over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /api/query                 current query spec
//	PUT    /api/query                 replace the query spec
//	POST   /api/query/reset           restore the empty query
//	GET    /api/csv                   CSV source text
//	PUT    /api/csv                   replace the CSV source (raw body)
//	GET    /api/sort                  secondary sort text
//	PUT    /api/sort                  replace the secondary sort text
//	GET    /api/results               run the query (?format=json|csv|table)
//	GET    /api/saved                 saved queries, newest first
//	POST   /api/saved                 save the current query under a name
//	POST   /api/saved/:index/apply    make a saved query current
//	DELETE /api/saved/:index          delete a saved query
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vegasq/csvplay/output"
	"github.com/vegasq/csvplay/queryspec"
	"github.com/vegasq/csvplay/workspace"
)

// maxCSVBytes bounds an uploaded CSV body.
const maxCSVBytes = 64 << 20

// Server serves one workspace.
type Server struct {
	ws     *workspace.Workspace
	log    *zap.Logger
	engine *gin.Engine
}

// New builds the router.
func New(ws *workspace.Workspace, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	s := &Server{ws: ws, log: log, engine: router}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/query", s.getQuery)
	api.PUT("/query", s.putQuery)
	api.POST("/query/reset", s.resetQuery)
	api.GET("/csv", s.getCSV)
	api.PUT("/csv", s.putCSV)
	api.GET("/sort", s.getSort)
	api.PUT("/sort", s.putSort)
	api.GET("/results", s.getResults)

	saved := api.Group("/saved")
	saved.GET("", s.listSaved)
	saved.POST("", s.saveQuery)
	saved.POST("/:index/apply", s.applySaved)
	saved.DELETE("/:index", s.removeSaved)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) getQuery(c *gin.Context) {
	c.JSON(http.StatusOK, s.ws.Query())
}

func (s *Server) putQuery(c *gin.Context) {
	var q queryspec.QuerySpec
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	s.ws.SetQuery(q)
	c.JSON(http.StatusOK, s.ws.Query())
}

func (s *Server) resetQuery(c *gin.Context) {
	s.ws.Reset()
	c.JSON(http.StatusOK, s.ws.Query())
}

func (s *Server) getCSV(c *gin.Context) {
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(s.ws.CSV()))
}

func (s *Server) putCSV(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCSVBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{}
	if err := s.ws.SetCSV(string(body)); err != nil {
		// The source is kept; it simply yields no rows.
		resp["parseError"] = err.Error()
	}
	resp["rowCount"] = s.ws.RowCount()
	resp["limit"] = s.ws.Query().Limit
	c.JSON(http.StatusOK, resp)
}

type sortBody struct {
	Sort string `json:"sort"`
}

func (s *Server) getSort(c *gin.Context) {
	c.JSON(http.StatusOK, sortBody{Sort: s.ws.SortText()})
}

func (s *Server) putSort(c *gin.Context) {
	var body sortBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.ws.SetSortText(body.Sort)
	c.JSON(http.StatusOK, body)
}

func (s *Server) getResults(c *gin.Context) {
	res := s.ws.Results()

	format := c.Query("format")
	if format == "" {
		c.JSON(http.StatusOK, res)
		return
	}

	f, err := output.New(format, c.Writer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch strings.ToLower(format) {
	case output.FormatCSV:
		c.Header("Content-Type", "text/csv; charset=utf-8")
	case output.FormatTable:
		c.Header("Content-Type", "text/plain; charset=utf-8")
	default:
		c.Header("Content-Type", "application/x-ndjson")
	}
	c.Status(http.StatusOK)
	if err := f.Format(res.Rows); err != nil {
		s.log.Warn("failed to write results", zap.Error(err))
	}
}

type savedBody struct {
	Name string `json:"name"`
}

func (s *Server) listSaved(c *gin.Context) {
	c.JSON(http.StatusOK, s.ws.Saved())
}

func (s *Server) saveQuery(c *gin.Context) {
	var body savedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.ws.SaveQuery(body.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	c.JSON(http.StatusCreated, s.ws.Saved())
}

func (s *Server) applySaved(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if !s.ws.ApplySaved(index) {
		c.JSON(http.StatusNotFound, gin.H{"error": "saved query not found"})
		return
	}
	c.JSON(http.StatusOK, s.ws.Query())
}

func (s *Server) removeSaved(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if !s.ws.RemoveSaved(index) {
		c.JSON(http.StatusNotFound, gin.H{"error": "saved query not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return 0, false
	}
	return index, true
}
