package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"storyboard/pkg/chunk"
	"storyboard/pkg/utils"
)

type chunksReq struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	Overlap   *int   `json:"overlap,omitempty"`
}

type chunksResp struct {
	Count     int           `json:"count"`
	ChunkSize int           `json:"chunk_size"`
	Overlap   int           `json:"overlap"`
	Tokens    int           `json:"tokens,omitempty"`
	Chunks    []chunk.Chunk `json:"chunks"`
}

// POST /api/chunks
func (s *Server) handlePostChunks(c echo.Context) error {
	var req chunksReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("text is required"))
	}

	size, overlap := s.Options.ChunkSize, s.Options.Overlap
	if req.ChunkSize > 0 {
		size = req.ChunkSize
		if overlap >= size {
			overlap = chunk.OverlapFor(size)
		}
	}
	if req.Overlap != nil {
		overlap = *req.Overlap
	}
	if overlap >= size {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("overlap must be smaller than chunk size"))
	}

	chunker := chunk.New(size, overlap)
	resp := chunksResp{ChunkSize: chunker.MaxChars, Overlap: chunker.Overlap, Chunks: chunker.Split(req.Text)}
	resp.Count = len(resp.Chunks)
	if c.QueryParam("tokens") == "true" {
		if n, err := utils.NumTokens(req.Text); err == nil {
			resp.Tokens = n
		}
	}
	return c.JSON(http.StatusOK, resp)
}
