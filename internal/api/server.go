// Package api serves image inspection and flattening over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/internal/logger"
	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

const (
	DefaultMaxBodySize  = 256 << 20
	DefaultMaxImageSize = 256 << 20

	HeaderFlatBase     = "X-Flat-Base"
	HeaderFlatSegments = "X-Flat-Segments"
)

// Options configures a Server.
type Options struct {
	// MaxBodySize caps uploaded images. Zero means DefaultMaxBodySize.
	MaxBodySize int64
	// MaxImageSize caps produced flat images. Zero means
	// DefaultMaxImageSize.
	MaxImageSize int64
	// Defaults are applied before query parameters.
	Defaults flatten.Options
	Logger   logger.Logger
}

type Server struct {
	maxBody  int64
	maxImage int64
	defaults flatten.Options
	log      logger.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		maxBody:  opts.MaxBodySize,
		maxImage: opts.MaxImageSize,
		defaults: opts.Defaults,
		log:      opts.Logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodySize
	}
	if s.maxImage <= 0 {
		s.maxImage = DefaultMaxImageSize
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/inspect", s.handleInspect)
	e.POST("/v1/flatten", s.handleFlatten)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInspect(c *echo.Context) error {
	ctx, id := s.begin(c)
	opts, err := s.parseOptions(c)
	if err != nil {
		return writeError(c, err, id)
	}
	f, err := s.readImage(c)
	if err != nil {
		return writeError(c, err, id)
	}
	res, err := flatten.Plan(ctx, f, opts)
	if err != nil && !errors.Is(err, flatten.ErrOverlap) {
		return writeError(c, err, id)
	}
	_, progs := f.ProgHeaders()
	return writeJSON(c, http.StatusOK, NewInspectResponse(res, progs, opts.Filter))
}

func (s *Server) handleFlatten(c *echo.Context) error {
	ctx, id := s.begin(c)
	log := logger.FromContext(ctx)
	opts, err := s.parseOptions(c)
	if err != nil {
		return writeError(c, err, id)
	}
	f, err := s.readImage(c)
	if err != nil {
		return writeError(c, err, id)
	}

	out := flatten.Buffer{Limit: s.maxImage}
	res, err := flatten.Run(ctx, f, &out, opts)
	if err != nil {
		log.Warn("flatten failed", "error", err)
		return writeError(c, err, id)
	}
	log.Info("flattened image",
		"segments", len(res.Segments),
		"base", fmt.Sprintf("%#x", res.Base),
		"size", humanize.IBytes(uint64(out.Len())),
	)

	h := c.Response().Header()
	h.Set(HeaderFlatBase, fmt.Sprintf("%#x", res.Base))
	h.Set(HeaderFlatSegments, strconv.Itoa(len(res.Segments)))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, out.Bytes())
}

// begin tags the request with an id and returns a context carrying a logger
// bound to it.
func (s *Server) begin(c *echo.Context) (context.Context, string) {
	id := c.Request().Header.Get(echo.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	log := s.log.With("request_id", id, "path", c.Request().URL.Path)
	return logger.WithContext(c.Request().Context(), log), id
}

func (s *Server) parseOptions(c *echo.Context) (flatten.Options, error) {
	opts := s.defaults
	if v := c.QueryParam("if"); v != "" {
		f, err := flatten.ParseFlags(v)
		if err != nil {
			return opts, newInvalidParam("if", err)
		}
		opts.Filter.Include = f
	}
	if v := c.QueryParam("if_not"); v != "" {
		f, err := flatten.ParseFlags(v)
		if err != nil {
			return opts, newInvalidParam("if_not", err)
		}
		opts.Filter.Exclude = f
	}
	if v := c.QueryParam("base"); v != "" {
		base, err := flatten.ParseAddress(v)
		if err != nil {
			return opts, newInvalidParam("base", err)
		}
		opts.Base = &base
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"allow_overlaps", &opts.AllowOverlaps},
		{"zero_fill", &opts.ZeroFill},
	} {
		v := c.QueryParam(b.name)
		if v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return opts, newInvalidParam(b.name, fmt.Errorf("invalid boolean %q", v))
		}
		*b.dst = on
	}
	return opts, nil
}

func (s *Server) readImage(c *echo.Context) (*elf.File, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(data)) > s.maxBody {
		return nil, fmt.Errorf("%w (limit %s)", ErrBodyTooLarge, humanize.IBytes(uint64(s.maxBody)))
	}
	f, err := elf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return f, nil
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, b)
}

func writeError(c *echo.Context, err error, requestID string) error {
	status, typ := classify(err)
	body := ErrorBody{Error: ResponseError{
		Type:      typ,
		Message:   err.Error(),
		RequestID: requestID,
	}}
	var ire invalidRequestError
	if errors.As(err, &ire) {
		body.Error.Param = ire.param
	}
	return writeJSON(c, status, body)
}
