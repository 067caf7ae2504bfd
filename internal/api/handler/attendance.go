package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/archive"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/imageutil"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/service"
)

const (
	// Login body values used in place of an email when nothing matched
	userNoPersonsFound = "no_persons_found"
	userUnknownPerson  = "unknown_person"

	msgRegistered = "You registered successfully."
	msgLoggedOut  = "Logged out successfully."
)

// AttendanceService interface for the service
type AttendanceService interface {
	Login(ctx context.Context, image []byte) (*service.LoginResult, error)
	Logout(ctx context.Context, email string) (*domain.AttendanceEvent, error)
	Enroll(ctx context.Context, req service.EnrollRequest) (*domain.Identity, error)
	Status(ctx context.Context, email string) (*service.StatusView, error)
	CheckedIn(ctx context.Context) ([]service.StatusView, error)
	AttendanceArchive(ctx context.Context, w io.Writer) error
	RosterCSV(ctx context.Context, w io.Writer) error
}

// AttendanceHandler serves the enrollment, login/logout and report routes
type AttendanceHandler struct {
	service AttendanceService
	logger  *slog.Logger
}

func NewAttendanceHandler(service AttendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterResponse response for register endpoint
type RegisterResponse struct {
	Status  int    `json:"status"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// LoginResponse response for a processed login capture
type LoginResponse struct {
	User        string `json:"user"`
	MatchStatus bool   `json:"match_status"`
}

// UserMessageResponse response for session outcomes
type UserMessageResponse struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// MessageResponse response when a report is empty
type MessageResponse struct {
	Message string `json:"message"`
}

// Register POST /register_new_user
func (h *AttendanceHandler) Register(c *fiber.Ctx) error {
	email := domain.NormalizeKey(c.FormValue("email"))

	image, err := readImage(c)
	if err != nil {
		return err
	}

	class := c.FormValue("class")
	if class == "" {
		class = c.FormValue("class_")
	}

	identity, err := h.service.Enroll(c.Context(), service.EnrollRequest{
		Name:     c.FormValue("name"),
		Email:    email,
		Phone:    c.FormValue("phone_number"),
		Class:    class,
		Division: c.FormValue("division"),
		Image:    image,
	})

	switch {
	case err == nil:
		return c.JSON(RegisterResponse{
			Status:  fiber.StatusOK,
			User:    identity.Key,
			Message: msgRegistered,
		})
	case errors.Is(err, domain.ErrAlreadyRegistered), errors.Is(err, domain.ErrSpoofDetected):
		appErr, _ := domain.AsAppError(err)
		return c.Status(appErr.StatusCode).JSON(RegisterResponse{
			Status:  appErr.StatusCode,
			User:    email,
			Message: appErr.Message,
		})
	default:
		return err
	}
}

// Login POST /login
func (h *AttendanceHandler) Login(c *fiber.Ctx) error {
	image, err := readImage(c)
	if err != nil {
		return err
	}

	result, err := h.service.Login(c.Context(), image)

	switch {
	case err == nil:
		return c.JSON(LoginResponse{User: result.Match.Key(), MatchStatus: true})
	case errors.Is(err, domain.ErrNoFaceDetected):
		return c.Status(domain.ErrNoFaceDetected.StatusCode).JSON(LoginResponse{User: userNoPersonsFound})
	case errors.Is(err, domain.ErrUnknownIdentity):
		return c.Status(domain.ErrUnknownIdentity.StatusCode).JSON(LoginResponse{User: userUnknownPerson})
	case errors.Is(err, domain.ErrAlreadyLoggedIn), errors.Is(err, domain.ErrSpoofDetected):
		appErr, _ := domain.AsAppError(err)
		return c.Status(appErr.StatusCode).JSON(UserMessageResponse{
			User:    matchedUser(result),
			Message: appErr.Message,
		})
	default:
		return err
	}
}

// Logout POST /logout?email=
func (h *AttendanceHandler) Logout(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		email = c.FormValue("email")
	}
	email = domain.NormalizeKey(email)

	_, err := h.service.Logout(c.Context(), email)

	switch {
	case err == nil:
		return c.JSON(UserMessageResponse{User: email, Message: msgLoggedOut})
	case errors.Is(err, domain.ErrUnregisteredIdentity), errors.Is(err, domain.ErrNotLoggedIn):
		appErr, _ := domain.AsAppError(err)
		return c.Status(appErr.StatusCode).JSON(UserMessageResponse{User: email, Message: appErr.Message})
	default:
		return err
	}
}

// AttendanceLogs GET /get_attendance_logs
func (h *AttendanceHandler) AttendanceLogs(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.AttendanceArchive(c.Context(), &buf); err != nil {
		return emptyReport(c, err, domain.ErrNoAttendanceLogs)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Attachment(archive.FileName)
	return c.Send(buf.Bytes())
}

// RegisteredUsers GET /get_registered_users_logs
func (h *AttendanceHandler) RegisteredUsers(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.RosterCSV(c.Context(), &buf); err != nil {
		return emptyReport(c, err, domain.ErrNoRegisteredUsers)
	}

	c.Attachment("user_details.csv")
	c.Set(fiber.HeaderContentType, "text/csv")
	return c.Send(buf.Bytes())
}

// Status GET /status/:email
func (h *AttendanceHandler) Status(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Params("email"))
	if email == "" {
		return domain.ErrValidationFailed.WithError(errors.New("email is required"))
	}

	view, err := h.service.Status(c.Context(), email)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// CheckedIn GET /status
func (h *AttendanceHandler) CheckedIn(c *fiber.Ctx) error {
	views, err := h.service.CheckedIn(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(views)
}

func emptyReport(c *fiber.Ctx, err, empty error) error {
	if errors.Is(err, empty) {
		appErr, _ := domain.AsAppError(err)
		return c.Status(appErr.StatusCode).JSON(MessageResponse{Message: appErr.Message})
	}
	return err
}

func matchedUser(result *service.LoginResult) string {
	if result == nil || result.Match.Status != matcher.StatusMatched {
		return ""
	}
	return result.Match.Key()
}

// readImage extracts the capture from the "image" or "file" form field
func readImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		file, err = c.FormFile("file")
	}
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("an image file is required"))
	}

	if file.Size == 0 || file.Size > imageutil.MaxImageSize {
		return nil, domain.ErrInvalidImage
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}
