package intake

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, ErrFileType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidForm),
		errors.Is(err, ErrTooManyFiles),
		errors.Is(err, validation.ErrBadBody):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondErr(c *fiber.Ctx, err error, fallback string) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("intake request failed", "component", "intake", "path", c.Path(), "error", err)
		msg = fallback
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Submit accepts the multipart intake form. Files are read from the
// repeated "files" part.
func (h *Handler) Submit(c *fiber.Ctx) error {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return badRequest(c, "Expected multipart/form-data")
	}
	var form Form
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "Invalid form data")
	}
	mf, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "Invalid form data")
	}

	uploads := make([]Upload, 0, len(mf.File["files"]))
	for _, fh := range mf.File["files"] {
		uploads = append(uploads, Upload{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	sub, err := h.service.Submit(c.UserContext(), form, uploads)
	if err != nil {
		return respondErr(c, err, "Failed to save submission")
	}
	return c.Status(fiber.StatusCreated).JSON(SubmitResponse{
		ID:     sub.ID,
		Folder: sub.Folder,
		Files:  len(sub.Files),
	})
}

func (h *Handler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	resp, err := h.service.List(Filter{
		Status: c.Query("status"),
		Query:  strings.TrimSpace(c.Query("q")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondErr(c, err, "Failed to list submissions")
	}
	return c.JSON(resp)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid submission ID")
	}
	sub, err := h.service.Get(id)
	if err != nil {
		return respondErr(c, err, "Failed to fetch submission")
	}
	return c.JSON(sub)
}

func (h *Handler) SetStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid submission ID")
	}
	var req StatusRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	sub, err := h.service.SetStatus(id, req.Status)
	if err != nil {
		return respondErr(c, err, "Failed to update submission")
	}
	return c.JSON(sub)
}
