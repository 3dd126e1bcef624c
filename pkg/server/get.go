package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"storyboard/pkg/export"
	"storyboard/pkg/schema"
	"storyboard/pkg/utils"
)

func (s *Server) handleGetRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":     "Storyboard API",
		"status":      "ok",
		"storyboards": s.Storyboards.Len(),
		"artifacts":   export.Artifacts(),
	})
}

func (s *Server) storyboard(c echo.Context) (*schema.Storyboard, error) {
	id := c.Param("id")
	if _, err := ksuid.Parse(id); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid storyboard id")
	}
	board, err := s.Loads.Get(id)
	if err != nil {
		if isNotFound(err) {
			return nil, c.JSON(http.StatusNotFound, utils.ErrJSON("storyboard not found"))
		}
		log.Error("failed loading storyboard", "id", id, "error", err)
		return nil, c.JSON(http.StatusInternalServerError, utils.ErrJSON("failed loading storyboard"))
	}
	return board, nil
}

// GET /api/storyboard/:id
func (s *Server) handleGetStoryboard(c echo.Context) error {
	board, err := s.storyboard(c)
	if board == nil {
		return err
	}
	return c.JSON(http.StatusOK, board)
}

// GET /api/storyboard/:id/:artifact
func (s *Server) handleGetArtifact(c echo.Context) error {
	board, err := s.storyboard(c)
	if board == nil {
		return err
	}

	name := c.Param("artifact")
	data, contentType, err := export.Render(board, name)
	if err != nil {
		if errors.Is(err, export.ErrUnknownArtifact) {
			return c.JSON(http.StatusNotFound, utils.ErrJSON(err.Error()))
		}
		log.Error("failed rendering artifact", "id", board.ID, "artifact", name, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON("failed rendering artifact"))
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", utils.SanitizeFilename(name)))
	return c.Blob(http.StatusOK, contentType, data)
}
