package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/labels"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/preprocess"
)

// ModelInfo describes one loaded model.
type ModelInfo struct {
	ID             string             `json:"id"`
	Backend        inference.Backend  `json:"backend"`
	InputSide      int                `json:"input_side"`
	InputEncoding  inference.Encoding `json:"input_encoding"`
	OutputEncoding inference.Encoding `json:"output_encoding"`
	Classes        int                `json:"classes"`
	Labels         []labels.Class     `json:"labels"`
}

// ClassifyResponse is a single-label result with its display tier.
type ClassifyResponse struct {
	*classifier.Result
	Severity classifier.Severity `json:"severity"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	if s.registry.State() != models.StateLoaded {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": s.registry.State().String()})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "models": len(s.registry.Models())})
}

func (s *Server) listModels(c echo.Context) error {
	if s.registry.State() != models.StateLoaded {
		return s.fail(c, models.NewError("", "", models.ErrNotInitialized, nil))
	}
	loaded := s.registry.Models()
	out := make([]ModelInfo, 0, len(loaded))
	for _, m := range loaded {
		out = append(out, ModelInfo{
			ID:             m.ID,
			Backend:        m.Backend,
			InputSide:      m.InputSide(),
			InputEncoding:  m.InputEncoding(),
			OutputEncoding: m.OutputEncoding(),
			Classes:        m.OutputSize(),
			Labels:         m.Labels.Classes(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// classify accepts a multipart "image" field or a raw image body.
func (s *Server) classify(c echo.Context) error {
	id := c.Param("id")

	top := 0
	if q := c.QueryParam("top"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, s.errorBody(c, "top must be a positive integer"))
		}
		top = n
	}
	withProbabilities := c.QueryParam("probabilities") != "false"

	body, err := s.imageReader(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, s.errorBody(c, err.Error()))
	}
	defer body.Close()

	img, _, err := images.Decode(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, s.errorBody(c, err.Error()))
	}

	ctx := c.Request().Context()
	if top != 0 {
		ranked, err := s.service.ClassifyTopN(ctx, id, img, top)
		if err != nil {
			return s.fail(c, err)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishRanked(ctx, ranked); err != nil {
				s.log.Warn("publish failed", "model", id, "error", err)
			}
		}
		return c.JSON(http.StatusOK, ranked)
	}

	res, err := s.service.Classify(ctx, id, img)
	if err != nil {
		return s.fail(c, err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, res); err != nil {
			s.log.Warn("publish failed", "model", id, "error", err)
		}
	}
	if !withProbabilities {
		res.AllProbabilities = nil
	}
	return c.JSON(http.StatusOK, ClassifyResponse{Result: res, Severity: classifier.SeverityOf(res.Confidence)})
}

func (s *Server) imageReader(c echo.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, errors.New("multipart field \"image\" is required")
		}
		return fh.Open()
	}
	return c.Request().Body, nil
}

// fail maps pipeline errors to HTTP status codes.
func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnknownModel):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	case errors.Is(err, preprocess.ErrInvalidImage):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("classification failed", "path", c.Path(), "error", err)
	}
	return c.JSON(status, s.errorBody(c, err.Error()))
}

func (s *Server) errorBody(c echo.Context, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
}
