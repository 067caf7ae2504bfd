package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/archive"
	"github.com/saturnino-fabrica-de-software/ponto/internal/audit"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/imageutil"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
	"github.com/saturnino-fabrica-de-software/ponto/internal/observability"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// LivenessPolicy decides at which point of the login pipeline the liveness gate runs.
type LivenessPolicy string

const (
	// PolicyUnified gates every captured image before extraction.
	PolicyUnified LivenessPolicy = "unified"
	// PolicyMatchOnly gates a login image only after it matched an identity.
	PolicyMatchOnly LivenessPolicy = "match_only"
)

type GalleryInterface interface {
	Snapshot(ctx context.Context) ([]domain.GalleryEntry, error)
	Identities(ctx context.Context) ([]domain.Identity, error)
	Contains(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*domain.Identity, error)
	Add(ctx context.Context, identity *domain.Identity, embedding domain.Embedding, image []byte, contentType string) error
}

type LedgerInterface interface {
	Login(ctx context.Context, key string) (*domain.AttendanceEvent, error)
	Logout(ctx context.Context, key string) (*domain.AttendanceEvent, error)
	State(ctx context.Context, key string) (domain.SessionState, error)
	CheckedIn(ctx context.Context) ([]string, error)
}

// EnrollRequest carries the roster fields and the capture of a new identity.
type EnrollRequest struct {
	Name     string
	Email    string
	Phone    string
	Class    string
	Division string
	Image    []byte
}

// LoginResult is returned whenever the capture matched an identity, even
// when the ledger then refused the login.
type LoginResult struct {
	Match matcher.MatchResult
	Event *domain.AttendanceEvent
}

// StatusView is the session of one enrolled identity.
type StatusView struct {
	Identity domain.Identity     `json:"identity"`
	Session  domain.SessionState `json:"session"`
}

type AttendanceService struct {
	gallery   GalleryInterface
	ledger    LedgerInterface
	events    repository.AttendanceRepositoryInterface
	extractor provider.EmbeddingExtractor
	liveness  provider.LivenessChecker
	matcher   *matcher.Matcher
	audit     audit.Logger
	publisher notify.Publisher
	logger    *slog.Logger

	policy            LivenessPolicy
	livenessThreshold float64
	providerTimeout   time.Duration
	providerName      string
	now               func() time.Time
}

func NewAttendanceService(
	gallery GalleryInterface,
	ledger LedgerInterface,
	events repository.AttendanceRepositoryInterface,
	extractor provider.EmbeddingExtractor,
	liveness provider.LivenessChecker,
	m *matcher.Matcher,
	logger *slog.Logger,
) *AttendanceService {
	return &AttendanceService{
		gallery:           gallery,
		ledger:            ledger,
		events:            events,
		extractor:         extractor,
		liveness:          liveness,
		matcher:           m,
		audit:             &audit.NoOpLogger{},
		publisher:         notify.Nop{},
		logger:            logger.With("component", "attendance"),
		policy:            PolicyUnified,
		livenessThreshold: 0.9,
		providerTimeout:   30 * time.Second,
		now:               time.Now,
	}
}

func (s *AttendanceService) WithAudit(a audit.Logger) *AttendanceService {
	s.audit = a
	return s
}

func (s *AttendanceService) WithPublisher(p notify.Publisher) *AttendanceService {
	s.publisher = p
	return s
}

func (s *AttendanceService) WithLivenessPolicy(policy LivenessPolicy) *AttendanceService {
	s.policy = policy
	return s
}

func (s *AttendanceService) WithLivenessThreshold(threshold float64) *AttendanceService {
	s.livenessThreshold = threshold
	return s
}

func (s *AttendanceService) WithProviderTimeout(timeout time.Duration) *AttendanceService {
	s.providerTimeout = timeout
	return s
}

// WithProviderName labels audit events with the backend in use.
func (s *AttendanceService) WithProviderName(name string) *AttendanceService {
	s.providerName = name
	return s
}

// Login identifies the person in image and checks them in.
func (s *AttendanceService) Login(ctx context.Context, image []byte) (*LoginResult, error) {
	img, err := imageutil.Normalize(image)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if s.policy == PolicyUnified {
		if err := s.gate(ctx, "login", "", img.Data); err != nil {
			return nil, err
		}
	}

	result, err := s.identify(ctx, img.Data)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case matcher.StatusNoFace:
		return nil, domain.ErrNoFaceDetected
	case matcher.StatusUnknown:
		return nil, domain.ErrUnknownIdentity
	}

	key := result.Identity.Key
	if s.policy == PolicyMatchOnly {
		if err := s.gate(ctx, "login", key, img.Data); err != nil {
			return &LoginResult{Match: result}, err
		}
	}

	ev, err := s.ledger.Login(ctx, key)
	if err != nil {
		s.rejected(ctx, audit.EventLogin, key, err)
		return &LoginResult{Match: result}, err
	}

	s.appended(ctx, audit.EventLogin, *ev)
	return &LoginResult{Match: result, Event: ev}, nil
}

// Logout checks out the identity registered under email.
func (s *AttendanceService) Logout(ctx context.Context, email string) (*domain.AttendanceEvent, error) {
	key := domain.NormalizeKey(email)
	if key == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("email is required"))
	}

	ev, err := s.ledger.Logout(ctx, key)
	if err != nil {
		s.rejected(ctx, audit.EventLogout, key, err)
		return nil, err
	}

	s.appended(ctx, audit.EventLogout, *ev)
	return ev, nil
}

// Enroll registers a new identity. The capture always passes the liveness gate first.
func (s *AttendanceService) Enroll(ctx context.Context, req EnrollRequest) (*domain.Identity, error) {
	identity := &domain.Identity{
		Key:      domain.NormalizeKey(req.Email),
		Name:     domain.TitleName(req.Name),
		Phone:    strings.TrimSpace(req.Phone),
		Class:    strings.TrimSpace(req.Class),
		Division: strings.TrimSpace(req.Division),
	}
	if identity.Key == "" || !strings.Contains(identity.Key, "@") {
		return nil, domain.ErrValidationFailed.WithError(errors.New("a valid email is required"))
	}
	if identity.Name == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("name is required"))
	}

	exists, err := s.gallery.Contains(ctx, identity.Key)
	if err != nil {
		return nil, err
	}
	if exists {
		s.enrollFailed(ctx, identity.Key, "duplicate", domain.ErrAlreadyRegistered)
		return nil, domain.ErrAlreadyRegistered
	}

	img, err := imageutil.Normalize(req.Image)
	if err != nil {
		return nil, fmt.Errorf("enroll %s: %w", identity.Key, err)
	}

	if err := s.gate(ctx, "enroll", identity.Key, img.Data); err != nil {
		s.enrollFailed(ctx, identity.Key, outcome(err), err)
		return nil, err
	}

	embeddings, err := s.extract(ctx, img.Data)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		s.enrollFailed(ctx, identity.Key, "no_face", domain.ErrNoFaceDetected)
		return nil, domain.ErrNoFaceDetected
	}

	identity.CreatedAt = s.now()
	if err := s.gallery.Add(ctx, identity, embeddings[0], img.Data, img.ContentType); err != nil {
		s.enrollFailed(ctx, identity.Key, outcome(err), err)
		return nil, err
	}

	observability.Enrollments.WithLabelValues("enrolled").Inc()
	s.record(ctx, audit.Event{
		EventType: audit.EventEnrolled,
		Key:       identity.Key,
		Decision:  "ENROLLED",
		Success:   true,
		Metadata:  map[string]string{"faces": strconv.Itoa(len(embeddings))},
	})
	_ = s.publisher.Publish(ctx, notify.Enrollment(*identity))

	return identity, nil
}

// Status returns today's session of an enrolled identity.
func (s *AttendanceService) Status(ctx context.Context, email string) (*StatusView, error) {
	identity, err := s.gallery.Get(ctx, domain.NormalizeKey(email))
	if err != nil {
		return nil, err
	}
	state, err := s.ledger.State(ctx, identity.Key)
	if err != nil {
		return nil, err
	}
	return &StatusView{Identity: *identity, Session: state}, nil
}

// CheckedIn lists every identity currently checked in today, by key.
func (s *AttendanceService) CheckedIn(ctx context.Context) ([]StatusView, error) {
	keys, err := s.ledger.CheckedIn(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]StatusView, 0, len(keys))
	for _, key := range keys {
		view, err := s.Status(ctx, key)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// RosterCSV writes the roster in user_details.csv format.
func (s *AttendanceService) RosterCSV(ctx context.Context, w io.Writer) error {
	identities, err := s.gallery.Identities(ctx)
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		return domain.ErrNoRegisteredUsers
	}
	if err := repository.WriteRosterCSV(w, identities); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}

// AttendanceArchive writes a zip of every daily log. The archive is built in
// memory so a failure never leaves a truncated download.
func (s *AttendanceService) AttendanceArchive(ctx context.Context, w io.Writer) error {
	var buf bytes.Buffer
	days, err := archive.WriteAttendanceLogs(ctx, &buf, s.events)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	s.logger.DebugContext(ctx, "attendance archive served", slog.Int("days", days))
	return nil
}

func (s *AttendanceService) identify(ctx context.Context, image []byte) (matcher.MatchResult, error) {
	probes, err := s.extract(ctx, image)
	if err != nil {
		return matcher.MatchResult{}, err
	}

	var gallery []domain.GalleryEntry
	if len(probes) > 0 {
		gallery, err = s.gallery.Snapshot(ctx)
		if err != nil {
			return matcher.MatchResult{}, err
		}
		observability.GallerySize.Set(float64(len(gallery)))
	}

	start := time.Now()
	result, err := s.matcher.Match(ctx, probes, gallery)
	observability.MatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return matcher.MatchResult{}, fmt.Errorf("match: %w", err)
	}
	observability.MatchDecisions.WithLabelValues(string(result.Status)).Inc()

	s.record(ctx, audit.Event{
		EventType: audit.EventMatch,
		Key:       keyOf(result),
		Decision:  string(result.Status),
		Success:   result.Matched(),
		Metadata: map[string]string{
			"faces":   strconv.Itoa(len(probes)),
			"gallery": strconv.Itoa(len(gallery)),
			"score":   strconv.FormatFloat(result.Score, 'f', 4, 64),
			"metric":  s.matcher.Comparator().Name(),
		},
	})
	return result, nil
}

func (s *AttendanceService) extract(ctx context.Context, image []byte) ([]domain.Embedding, error) {
	var embeddings []domain.Embedding
	err := s.callProvider(ctx, "extract", func(ctx context.Context) error {
		var err error
		embeddings, err = s.extractor.ExtractEmbeddings(ctx, image)
		return err
	})
	return embeddings, err
}

// gate runs the liveness check. A capture without a face is reported as
// ErrNoFaceDetected rather than a spoof.
func (s *AttendanceService) gate(ctx context.Context, operation, key string, image []byte) error {
	var result *provider.LivenessResult
	err := s.callProvider(ctx, "liveness", func(ctx context.Context) error {
		var err error
		result, err = s.liveness.CheckLiveness(ctx, image, s.livenessThreshold)
		return err
	})
	if err != nil {
		return err
	}
	if result.Passed(s.livenessThreshold) {
		return nil
	}
	if result.NoFace() {
		return domain.ErrNoFaceDetected
	}

	observability.SpoofDetected.WithLabelValues(operation).Inc()
	s.record(ctx, audit.Event{
		EventType: audit.EventSpoofDetected,
		Key:       key,
		Decision:  "SPOOF",
		Success:   false,
		Error:     strings.Join(result.Reasons, ", "),
		Metadata: map[string]string{
			"operation":  operation,
			"confidence": strconv.FormatFloat(result.Confidence, 'f', 4, 64),
		},
	})
	return domain.ErrSpoofDetected.WithError(fmt.Errorf("liveness confidence %.2f: %s",
		result.Confidence, strings.Join(result.Reasons, ", ")))
}

// callProvider bounds fn by the provider timeout. Anything other than an
// image or no-face verdict becomes ErrServiceUnavailable.
func (s *AttendanceService) callProvider(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	observability.ProviderDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrInvalidImage) || errors.Is(err, domain.ErrNoFaceDetected) {
		return err
	}

	s.logger.ErrorContext(ctx, "face provider call failed",
		slog.String("stage", stage),
		slog.String("provider", s.providerName),
		slog.Any("error", err),
	)
	return domain.ErrServiceUnavailable.WithError(fmt.Errorf("%s: %w", stage, err))
}

func (s *AttendanceService) appended(ctx context.Context, eventType audit.EventType, ev domain.AttendanceEvent) {
	observability.AttendanceEvents.WithLabelValues(string(ev.Direction)).Inc()
	s.record(ctx, audit.Event{
		EventType: eventType,
		Key:       ev.Key,
		Decision:  string(ev.Direction),
		Success:   true,
		Metadata:  map[string]string{"day": ev.Day()},
	})
	_ = s.publisher.Publish(ctx, notify.Attendance(ev))
}

func (s *AttendanceService) rejected(ctx context.Context, eventType audit.EventType, key string, err error) {
	decision := "ERROR"
	if appErr, ok := domain.AsAppError(err); ok {
		decision = appErr.Code
		observability.SessionRejections.WithLabelValues(appErr.Code).Inc()
	}
	s.record(ctx, audit.Event{
		EventType: eventType,
		Key:       key,
		Decision:  decision,
		Success:   false,
		Error:     err.Error(),
	})
}

func (s *AttendanceService) enrollFailed(ctx context.Context, key, outcome string, err error) {
	observability.Enrollments.WithLabelValues(outcome).Inc()
	s.record(ctx, audit.Event{
		EventType: audit.EventEnrolled,
		Key:       key,
		Decision:  strings.ToUpper(outcome),
		Success:   false,
		Error:     err.Error(),
	})
}

func (s *AttendanceService) record(ctx context.Context, event audit.Event) {
	if event.Provider == "" {
		event.Provider = s.providerName
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit event",
			slog.String("event_type", string(event.EventType)),
			slog.Any("error", err),
		)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrSpoofDetected):
		return "spoof"
	case errors.Is(err, domain.ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func keyOf(result matcher.MatchResult) string {
	if result.Identity == nil {
		return ""
	}
	return result.Identity.Key
}
