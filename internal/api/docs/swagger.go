package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// RegisterResponse is returned by POST /register_new_user
type RegisterResponse struct {
	Status  int    `json:"status" example:"200"`
	User    string `json:"user" example:"ana@school.edu"`
	Message string `json:"message" example:"You registered successfully."`
}

// LoginResponse is returned by POST /login when the capture was processed
type LoginResponse struct {
	User        string `json:"user" example:"ana@school.edu"`
	MatchStatus bool   `json:"match_status" example:"true"`
}

// UserMessageResponse carries the session outcomes of login and logout
type UserMessageResponse struct {
	User    string `json:"user" example:"ana@school.edu"`
	Message string `json:"message" example:"Logged out successfully."`
}

// MessageResponse is returned when there is nothing to download
type MessageResponse struct {
	Message string `json:"message" example:"No logins yet."`
}

// SessionData is the session part of a status response
type SessionData struct {
	Status string `json:"status" example:"CHECKED_IN"`
	Since  string `json:"since" example:"2024-03-01T08:30:00Z"`
}

// IdentityData is the identity part of a status response
type IdentityData struct {
	Email    string `json:"email" example:"ana@school.edu"`
	Name     string `json:"name" example:"Ana Maria"`
	Phone    string `json:"phone" example:"555-0100"`
	Class    string `json:"class" example:"10"`
	Division string `json:"division" example:"B"`
}

// StatusResponse is returned by GET /status/{email}
type StatusResponse struct {
	Identity IdentityData `json:"identity"`
	Session  SessionData  `json:"session"`
}

// HealthResponse is returned by the probes
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version,omitempty" example:"0.1.0"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Ponto Attendance API",
		Version:     "v1.0.0",
		Description: "Face-recognition attendance: enrollment, check-in and check-out with liveness gating",
		Host:        "localhost:3000",
		Path:        "/",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /register_new_user
		endpoint.New(
			endpoint.POST,
			"/register_new_user",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Enroll a new user"),
			endpoint.WithDescription("Multipart form with fields name, email, phone_number, class, division and an image file (image or file). The capture must pass the liveness check."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RegisterResponse{}, "200", "User enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(RegisterResponse{Status: 400, User: "ana@school.edu", Message: "You are already registered! Proceed to login."}, "400", "Already registered"),
				response.New(RegisterResponse{Status: 409, User: "ana@school.edu", Message: "Liveness check failed, possible spoofing attempt"}, "409", "Spoof detected"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "Face recognition service unavailable, try again later"}, "503", "Service Unavailable"),
			}),
		),

		// POST /login
		endpoint.New(
			endpoint.POST,
			"/login",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Check in by face"),
			endpoint.WithDescription("Multipart form with an image file (image or file). A matched, live, checked-out user is checked in."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(LoginResponse{}, "200", "User checked in"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(LoginResponse{User: "unknown_person", MatchStatus: false}, "404", "No enrolled user matches"),
				response.New(UserMessageResponse{User: "ana@school.edu", Message: "You are already logged in."}, "409", "Already checked in or spoof detected"),
				response.New(LoginResponse{User: "no_persons_found", MatchStatus: false}, "422", "No face in the capture"),
				response.New(ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "Face recognition service unavailable, try again later"}, "503", "Service Unavailable"),
			}),
		),

		// POST /logout
		endpoint.New(
			endpoint.POST,
			"/logout",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Check out"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("email", parameter.Query, parameter.WithDescription("Email the user enrolled with")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(UserMessageResponse{}, "200", "Logged out successfully."),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(UserMessageResponse{User: "ghost@school.edu", Message: "User does not exist"}, "404", "Not enrolled"),
				response.New(UserMessageResponse{User: "ana@school.edu", Message: "User is not logged in."}, "409", "Not checked in"),
			}),
		),

		// GET /get_attendance_logs
		endpoint.New(
			endpoint.GET,
			"/get_attendance_logs",
			endpoint.WithTags("Reports"),
			endpoint.WithSummary("Download every daily log as a zip"),
			endpoint.WithProduce([]mime.MIME{mime.MIME("application/zip")}),
			endpoint.WithErrors([]response.Response{
				response.New(MessageResponse{Message: "No logins yet."}, "404", "No logs"),
			}),
		),

		// GET /get_registered_users_logs
		endpoint.New(
			endpoint.GET,
			"/get_registered_users_logs",
			endpoint.WithTags("Reports"),
			endpoint.WithSummary("Download the roster as CSV"),
			endpoint.WithProduce([]mime.MIME{mime.MIME("text/csv")}),
			endpoint.WithErrors([]response.Response{
				response.New(MessageResponse{Message: "No registered users currently."}, "404", "No users"),
			}),
		),

		// GET /status
		endpoint.New(
			endpoint.GET,
			"/status",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Users currently checked in"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New([]StatusResponse{}, "200", "Checked in users, by email"),
			}),
		),

		// GET /status/{email}
		endpoint.New(
			endpoint.GET,
			"/status/{email}",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Current session of a user"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("email", parameter.Path, parameter.WithDescription("Email the user enrolled with")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatusResponse{}, "200", "Session found"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "UNREGISTERED_IDENTITY", Message: "User does not exist"}, "404", "Not enrolled"),
			}),
		),

		// GET /health
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Process is up"),
			}),
		),

		// GET /ready
		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{Status: "ready"}, "200", "Storage reachable"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "storage not reachable"}, "503", "Service Unavailable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
