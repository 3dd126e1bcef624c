package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"storyboard/pkg/recovery"
	"storyboard/pkg/schema"
	"storyboard/pkg/story"
	"storyboard/pkg/utils"
)

const maxUpload = 5 << 20

type storyboardReq struct {
	Text  string `json:"text" form:"text"`
	Style string `json:"style,omitempty" form:"style"`
}

// readStory accepts a JSON body or a multipart upload with the story in the "file" field.
func readStory(c echo.Context) (storyboardReq, error) {
	var req storyboardReq
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req.Style = c.FormValue("style")
		fh, err := c.FormFile("file")
		if err != nil {
			req.Text = c.FormValue("text")
			return req, nil
		}
		f, err := fh.Open()
		if err != nil {
			return req, err
		}
		defer f.Close()
		b, err := io.ReadAll(io.LimitReader(f, maxUpload))
		if err != nil {
			return req, err
		}
		req.Text = string(b)
		return req, nil
	}

	err := c.Bind(&req)
	return req, err
}

func runKey(req storyboardReq) string {
	h := sha256.New()
	io.WriteString(h, strings.TrimSpace(req.Style))
	h.Write([]byte{0})
	io.WriteString(h, strings.TrimSpace(req.Text))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// POST /api/storyboard
func (s *Server) handlePostStoryboard(c echo.Context) error {
	req, err := readStory(c)
	if err != nil {
		log.Error("invalid storyboard request", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("story text is required"))
	}

	key := runKey(req)
	force := c.Request().Header.Get("Cache-Control") == "no-cache"
	w := utils.NewSSEWriter(c)
	defer w.Close()

	if !force {
		if board, ok := s.Runs.Peek(key); ok {
			log.Info("storyboard served from cache", "key", key[:8], "id", board.ID)
			return w.Event("done", board)
		}
	}

	log.Info("starting storyboard run", "key", key[:8], "chars", len([]rune(req.Text)), "force", force)
	unwatch := s.watchers.watch(key, req, func(ev story.Event) {
		if err := w.Event(sseName(ev.Kind), ev); err != nil {
			log.Warn("SSE write error", "error", err)
		}
	})
	defer unwatch()

	var board *schema.Storyboard
	if force {
		board, err = s.Runs.Force(key)
		if err != nil {
			// A failed rerun must not leave the older result answering later requests.
			s.Runs.Forget(key)
		}
	} else {
		board, err = s.Runs.Get(key)
	}
	unwatch()
	if err != nil {
		return w.Event("error", runError(err))
	}
	return w.Event("done", board)
}

// runStoryboard is the Runs work function. It runs on the server context so a
// dropped client does not cancel a run other callers may be waiting on.
func (s *Server) runStoryboard(key string) (*schema.Storyboard, error) {
	params, ok := s.watchers.request(key)
	if !ok {
		return nil, errors.New("missing run parameters")
	}
	log.Debug("storyboard run started", "key", key[:8], "watching", s.watchers.count(key))

	opts := s.Options
	if style := strings.TrimSpace(params.Style); style != "" {
		opts.Style = style
	}

	board, err := story.New(s.Inferencer, opts).Run(s.Ctx, params.Text, func(ev story.Event) {
		s.watchers.publish(key, ev)
	})
	if board != nil && len(board.Failures) > 0 {
		log.Warn("storyboard run recorded failures", "id", board.ID, "failures", len(board.Failures))
	}
	if err != nil {
		log.Error("storyboard run failed", "key", key[:8], "error", err)
		return nil, &failedRun{board: board, err: err}
	}
	s.save(board)
	return board, nil
}

type failedRun struct {
	board *schema.Storyboard
	err   error
}

func (f *failedRun) Error() string { return f.err.Error() }
func (f *failedRun) Unwrap() error { return f.err }

func runError(err error) map[string]any {
	out := utils.ErrJSON(err.Error())
	var rerr *recovery.RecoveryError
	if errors.As(err, &rerr) {
		out["raw"] = rerr.Raw
	}
	var failed *failedRun
	if errors.As(err, &failed) && failed.board != nil {
		out["failures"] = failed.board.Failures
	}
	return out
}

func sseName(kind story.EventKind) string {
	switch kind {
	case story.EventProfile, story.EventScenes, story.EventPrompt, story.EventFailure:
		return string(kind)
	default:
		return "progress"
	}
}
