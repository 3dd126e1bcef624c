package server

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storyboard/pkg/export"
	"storyboard/pkg/flight"
	"storyboard/pkg/inference"
	"storyboard/pkg/schema"
	"storyboard/pkg/story"
	"storyboard/pkg/utils"
)

type Server struct {
	Echo       *echo.Echo
	Inferencer inference.Inferencer
	Options    story.Options
	// OutputDir receives one directory of artifacts per storyboard. Empty keeps runs in memory only.
	OutputDir string
	Ctx       context.Context

	Storyboards *utils.SyncMap[string, *schema.Storyboard]
	// Runs coalesces identical submissions and remembers finished ones for an hour.
	Runs  *flight.Cache[string, *schema.Storyboard]
	Loads *flight.Cache[string, *schema.Storyboard]

	watchers *watchers
}

// NewServer wires the routes. The delay in opts is applied once to inf so that
// it spaces requests across concurrent runs.
func NewServer(ctx context.Context, inf inference.Inferencer, opts story.Options, outputDir string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("10M"))

	s := &Server{
		Echo:        e,
		Inferencer:  inference.Throttle(inf, opts.Delay),
		Options:     opts,
		OutputDir:   outputDir,
		Ctx:         ctx,
		Storyboards: utils.NewSyncMap[string, *schema.Storyboard](),
		watchers:    newWatchers(),
	}
	s.Options.Delay = 0
	s.Runs = flight.NewCache(s.runStoryboard)
	s.Loads = flight.NewCache(s.loadStoryboard)
	s.Loads.Expiry(10 * time.Minute)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)

	api := s.Echo.Group("/api")
	api.POST("/chunks", s.handlePostChunks)         // chunk preview
	api.POST("/storyboard", s.handlePostStoryboard) // SSE run
	api.GET("/storyboard/:id", s.handleGetStoryboard)
	api.GET("/storyboard/:id/:artifact", s.handleGetArtifact)
}

func (s *Server) Start(addr string) error {
	log.Info("server listening", "addr", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down server")
	return s.Echo.Shutdown(ctx)
}

// loadStoryboard returns a storyboard from memory or from its record in OutputDir.
func (s *Server) loadStoryboard(id string) (*schema.Storyboard, error) {
	if board, ok := s.Storyboards.Load(id); ok {
		return board, nil
	}
	if s.OutputDir == "" {
		return nil, export.ErrNoRecord
	}
	board, err := export.Load(filepath.Join(s.OutputDir, id))
	if err != nil {
		return nil, err
	}
	s.Storyboards.Store(id, board)
	log.Debug("storyboard loaded from disk", "id", id, "segments", len(board.Segments))
	return board, nil
}

func (s *Server) save(board *schema.Storyboard) {
	s.Storyboards.Store(board.ID, board)
	if s.OutputDir == "" {
		return
	}
	if _, err := export.WriteAll(filepath.Join(s.OutputDir, board.ID), board); err != nil {
		log.Warn("failed saving storyboard", "id", board.ID, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, export.ErrNoRecord)
}
