package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"minisocial/internal/middleware"
	"minisocial/internal/models"
	"minisocial/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Generic messages for 500 responses; the cause goes in details.
const (
	msgCreateFailed = "Server error while creating post"
	msgServerError  = "Server error"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// FeedPage is a parsed ?page=&limit= pair.
type FeedPage struct {
	Page  int
	Limit int
}

// parseFeedPage reads page and limit. Missing, non-numeric or non-positive
// values fall back to the defaults; limit is capped.
func parseFeedPage(c *fiber.Ctx) FeedPage {
	page, limit := service.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))
	return FeedPage{Page: page, Limit: limit}
}

func queryInt(c *fiber.Ctx, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return n
}

// responseCommitted reports whether something already wrote a body.
func responseCommitted(c *fiber.Ctx) bool {
	return len(c.Response().Body()) > 0
}

// respondServiceError maps a service error onto the error response. Known
// AppError codes keep their status and message; anything else is a 500 with
// generic as the message and the cause echoed in details.
func respondServiceError(c *fiber.Ctx, err error, generic string) error {
	if responseCommitted(c) {
		middleware.Logger.WarnContext(c.UserContext(), "response already sent, dropping error",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		return c.Status(models.StatusForError(err)).JSON(models.ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		})
	}

	middleware.Logger.ErrorContext(c.UserContext(), "request failed",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   generic,
		Code:    models.CodeInternal,
		Details: err.Error(),
	})
}

// postBody is the text part of a create or edit request, JSON or form encoded.
type postBody struct {
	Content string `json:"content" form:"content"`
}

type commentBody struct {
	Text string `json:"text" form:"text"`
}

// parseBody decodes the request body into dst. An empty body leaves dst zero.
// On failure it writes a 400 and returns errResponseWritten.
func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

// readImage loads the optional "image" file of a multipart request. It
// returns nil when no file was sent.
func (s *Server) readImage(c *fiber.Ctx) (*service.Image, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, nil
	}
	if limit := int64(s.config.UploadMaxBytes()); fh.Size > limit {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(fmt.Sprintf("Image exceeds %d MB", limit/(1024*1024))))
		return nil, errResponseWritten
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.Image{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
	}, nil
}

// caller returns the identity AuthRequired attached.
func caller(c *fiber.Ctx) models.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}
