package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/gallery"
	"github.com/saturnino-fabrica-de-software/ponto/internal/imageutil"
	"github.com/saturnino-fabrica-de-software/ponto/internal/ledger"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository/filestore"
)

type MockFaceProvider struct {
	mock.Mock
}

func (m *MockFaceProvider) ExtractEmbeddings(ctx context.Context, image []byte) ([]domain.Embedding, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Embedding), args.Error(1)
}

func (m *MockFaceProvider) CheckLiveness(ctx context.Context, image []byte, threshold float64) (*provider.LivenessResult, error) {
	args := m.Called(ctx, image, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.LivenessResult), args.Error(1)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) messages() []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Message(nil), p.msgs...)
}

var (
	live  = &provider.LivenessResult{IsLive: true, Confidence: 0.97}
	spoof = &provider.LivenessResult{IsLive: false, Confidence: 0.2, Reasons: []string{"spoof detected"}}
	blank = &provider.LivenessResult{IsLive: false, Reasons: []string{provider.ReasonNoFace}}
)

// capture returns a PNG upload and the bytes the service hands to providers after normalization.
func capture(t *testing.T, seed uint8) ([]byte, []byte) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x * 5), B: uint8(y * 5), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	normalized, err := imageutil.Normalize(buf.Bytes())
	require.NoError(t, err)
	return buf.Bytes(), normalized.Data
}

func axis(i int) domain.Embedding {
	e := make(domain.Embedding, 128)
	e[i] = 1
	return e
}

type fixture struct {
	svc        *AttendanceService
	provider   *MockFaceProvider
	identities *filestore.IdentityRepository
	events     *filestore.AttendanceRepository
	publisher  *recordingPublisher
	dbDir      string
	now        time.Time
}

func newFixture(t *testing.T, policy LivenessPolicy) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	dbDir := t.TempDir()
	identities, err := filestore.NewIdentityRepository(dbDir)
	require.NoError(t, err)
	images, err := filestore.NewImageStore(dbDir)
	require.NoError(t, err)
	events, err := filestore.NewAttendanceRepository(t.TempDir(), time.UTC)
	require.NoError(t, err)

	g := gallery.New(identities, images, logger)
	l := ledger.New(events, g, time.UTC, logger, ledger.WithClock(func() time.Time { return now }))
	p := &MockFaceProvider{}
	pub := &recordingPublisher{}

	svc := NewAttendanceService(g, l, events, p, p, matcher.New(matcher.NewEuclideanComparator(0)), logger).
		WithLivenessPolicy(policy).
		WithPublisher(pub).
		WithProviderName("mock")
	svc.now = func() time.Time { return now }

	return &fixture{
		svc:        svc,
		provider:   p,
		identities: identities,
		events:     events,
		publisher:  pub,
		dbDir:      dbDir,
		now:        now,
	}
}

// enroll registers email with the given embedding through the service.
func (f *fixture) enroll(t *testing.T, email string, seed uint8, emb domain.Embedding) {
	t.Helper()
	raw, img := capture(t, seed)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil).Once()
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{emb}, nil).Once()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{Name: "test user", Email: email, Image: raw})
	require.NoError(t, err)
}

func (f *fixture) dayEvents(t *testing.T) []domain.AttendanceEvent {
	t.Helper()
	events, err := f.events.ListDay(context.Background(), f.now.Format(domain.DayLayout))
	require.NoError(t, err)
	return events
}

func TestAttendanceService_Enroll(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	raw, img := capture(t, 10)

	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil).Once()
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0), axis(1)}, nil).Once()

	identity, err := f.svc.Enroll(context.Background(), EnrollRequest{
		Name:     "ana maria",
		Email:    " Ana@School.edu ",
		Phone:    "555-0100",
		Class:    "10",
		Division: "B",
		Image:    raw,
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@school.edu", identity.Key)
	assert.Equal(t, "Ana Maria", identity.Name)
	assert.Equal(t, f.now, identity.CreatedAt)
	assert.FileExists(t, identity.ImageRef)

	entries, err := f.identities.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, axis(0), entries[0].Embedding, "only the first face is enrolled")

	msgs := f.publisher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindEnrollment, msgs[0].Kind)
	f.provider.AssertExpectations(t)
}

func TestAttendanceService_Enroll_Twice(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))

	raw, _ := capture(t, 11)
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{Name: "Ana", Email: "ANA@school.edu", Image: raw})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	entries, err := f.identities.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	f.provider.AssertNumberOfCalls(t, "CheckLiveness", 1)
}

func TestAttendanceService_Enroll_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *MockFaceProvider, img []byte)
		wantErr error
	}{
		{
			name: "spoof",
			setup: func(p *MockFaceProvider, img []byte) {
				p.On("CheckLiveness", mock.Anything, img, 0.9).Return(spoof, nil)
			},
			wantErr: domain.ErrSpoofDetected,
		},
		{
			name: "live but below threshold",
			setup: func(p *MockFaceProvider, img []byte) {
				p.On("CheckLiveness", mock.Anything, img, 0.9).Return(&provider.LivenessResult{IsLive: true, Confidence: 0.5}, nil)
			},
			wantErr: domain.ErrSpoofDetected,
		},
		{
			name: "liveness sees no face",
			setup: func(p *MockFaceProvider, img []byte) {
				p.On("CheckLiveness", mock.Anything, img, 0.9).Return(blank, nil)
			},
			wantErr: domain.ErrNoFaceDetected,
		},
		{
			name: "extractor sees no face",
			setup: func(p *MockFaceProvider, img []byte) {
				p.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
				p.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{}, nil)
			},
			wantErr: domain.ErrNoFaceDetected,
		},
		{
			name: "model unavailable",
			setup: func(p *MockFaceProvider, img []byte) {
				p.On("CheckLiveness", mock.Anything, img, 0.9).Return(nil, errors.New("connection refused"))
			},
			wantErr: domain.ErrServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, PolicyUnified)
			raw, img := capture(t, 20)
			tt.setup(f.provider, img)

			_, err := f.svc.Enroll(context.Background(), EnrollRequest{Name: "Bo", Email: "bo@school.edu", Image: raw})
			assert.ErrorIs(t, err, tt.wantErr)

			files, err := os.ReadDir(f.dbDir)
			require.NoError(t, err)
			assert.Empty(t, files, "a rejected enrollment writes nothing")
			assert.Empty(t, f.publisher.messages())
		})
	}
}

func TestAttendanceService_Enroll_Validation(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	raw, _ := capture(t, 1)

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{Name: "Bo", Email: "", Image: raw})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = f.svc.Enroll(context.Background(), EnrollRequest{Name: "  ", Email: "bo@school.edu", Image: raw})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = f.svc.Enroll(context.Background(), EnrollRequest{Name: "Bo", Email: "bo@school.edu", Image: []byte("not an image")})
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	f.provider.AssertNotCalled(t, "CheckLiveness", mock.Anything, mock.Anything, mock.Anything)
}

func TestAttendanceService_Login(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))

	raw, img := capture(t, 30)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)

	result, err := f.svc.Login(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "ana@school.edu", result.Match.Key())
	require.NotNil(t, result.Event)
	assert.Equal(t, domain.DirectionIn, result.Event.Direction)

	result, err = f.svc.Login(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrAlreadyLoggedIn)
	require.NotNil(t, result)
	assert.Equal(t, "ana@school.edu", result.Match.Key())
	assert.Nil(t, result.Event)

	events := f.dayEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectionIn, events[0].Direction)

	var attendance int
	for _, msg := range f.publisher.messages() {
		if msg.Kind == notify.KindAttendance {
			attendance++
		}
	}
	assert.Equal(t, 1, attendance)
}

func TestAttendanceService_Login_SecondFaceInFrame(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))
	f.enroll(t, "bo@school.edu", 11, axis(1))

	isReal, score := true, 0.99
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(deepface.RepresentResponse{Results: []deepface.RepresentResult{
			{Embedding: axis(0), FacialArea: deepface.FacialArea{W: 300, H: 300}, IsReal: &isReal, AntispoofScore: &score},
			{Embedding: axis(1), FacialArea: deepface.FacialArea{W: 300, H: 300}, IsReal: &isReal, AntispoofScore: &score},
		}})
	}))
	t.Cleanup(server.Close)

	cfg := deepface.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RetryCount = 0
	df := deepface.NewProvider(cfg)
	f.svc.extractor = df
	f.svc.liveness = df

	raw, _ := capture(t, 31)
	result, err := f.svc.Login(context.Background(), raw)
	require.NoError(t, err, "a second live face in frame is not a spoof")
	assert.Equal(t, "ana@school.edu", result.Match.Key())

	events := f.dayEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "ana@school.edu", events[0].Key)
}

func TestAttendanceService_Login_NoMatch(t *testing.T) {
	tests := []struct {
		name       string
		embeddings []domain.Embedding
		wantErr    error
	}{
		{name: "no face", embeddings: []domain.Embedding{}, wantErr: domain.ErrNoFaceDetected},
		{name: "unknown person", embeddings: []domain.Embedding{axis(5)}, wantErr: domain.ErrUnknownIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, PolicyUnified)
			f.enroll(t, "ana@school.edu", 10, axis(0))

			raw, img := capture(t, 40)
			f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
			f.provider.On("ExtractEmbeddings", mock.Anything, img).Return(tt.embeddings, nil)

			result, err := f.svc.Login(context.Background(), raw)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, result)
			assert.Empty(t, f.dayEvents(t))
		})
	}
}

func TestAttendanceService_Login_TieBreakBySortedKey(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "b@x.com", 1, axis(0))
	f.enroll(t, "a@x.com", 2, axis(0))

	raw, img := capture(t, 50)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)

	result, err := f.svc.Login(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", result.Match.Key())
}

func TestAttendanceService_Login_SpoofUnified(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))

	raw, img := capture(t, 60)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(spoof, nil)

	result, err := f.svc.Login(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrSpoofDetected)
	assert.Nil(t, result)
	assert.Empty(t, f.dayEvents(t))
	f.provider.AssertNotCalled(t, "ExtractEmbeddings", mock.Anything, img)
}

func TestAttendanceService_Login_MatchOnlyPolicy(t *testing.T) {
	t.Run("spoof after a match", func(t *testing.T) {
		f := newFixture(t, PolicyMatchOnly)
		f.enroll(t, "ana@school.edu", 10, axis(0))

		raw, img := capture(t, 70)
		f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)
		f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(spoof, nil)

		result, err := f.svc.Login(context.Background(), raw)
		assert.ErrorIs(t, err, domain.ErrSpoofDetected)
		require.NotNil(t, result)
		assert.Equal(t, "ana@school.edu", result.Match.Key())
		assert.Empty(t, f.dayEvents(t))
	})

	t.Run("unknown faces skip the gate", func(t *testing.T) {
		f := newFixture(t, PolicyMatchOnly)
		f.enroll(t, "ana@school.edu", 10, axis(0))

		raw, img := capture(t, 71)
		f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(9)}, nil)

		_, err := f.svc.Login(context.Background(), raw)
		assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
		f.provider.AssertNotCalled(t, "CheckLiveness", mock.Anything, img, mock.Anything)
	})
}

func TestAttendanceService_Login_ProviderTimeout(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.svc.WithProviderTimeout(20 * time.Millisecond)

	raw, img := capture(t, 80)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := f.svc.Login(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.False(t, errors.Is(err, domain.ErrNoFaceDetected))
}

func TestAttendanceService_Logout(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))
	ctx := context.Background()

	_, err := f.svc.Logout(ctx, "ghost@school.edu")
	assert.ErrorIs(t, err, domain.ErrUnregisteredIdentity)

	_, err = f.svc.Logout(ctx, "ana@school.edu")
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
	assert.Empty(t, f.dayEvents(t))

	_, err = f.svc.Logout(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	raw, img := capture(t, 90)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)
	_, err = f.svc.Login(ctx, raw)
	require.NoError(t, err)

	ev, err := f.svc.Logout(ctx, "ANA@school.edu")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionOut, ev.Direction)

	states := domain.Replay(f.dayEvents(t))
	assert.Equal(t, domain.CheckedOut, states["ana@school.edu"].Status)

	view, err := f.svc.Status(ctx, "ana@school.edu")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckedOut, view.Session.Status)
	assert.Equal(t, "ana@school.edu", view.Identity.Key)
}

func TestAttendanceService_Status_Unregistered(t *testing.T) {
	f := newFixture(t, PolicyUnified)

	_, err := f.svc.Status(context.Background(), "ghost@school.edu")
	assert.ErrorIs(t, err, domain.ErrUnregisteredIdentity)
}

func TestAttendanceService_CheckedIn(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	ctx := context.Background()
	f.enroll(t, "bo@school.edu", 10, axis(1))
	f.enroll(t, "ana@school.edu", 11, axis(0))

	views, err := f.svc.CheckedIn(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)

	for i, emb := range []domain.Embedding{axis(1), axis(0)} {
		raw, img := capture(t, uint8(120+i))
		f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
		f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{emb}, nil)
		_, err := f.svc.Login(ctx, raw)
		require.NoError(t, err)
	}
	_, err = f.svc.Logout(ctx, "bo@school.edu")
	require.NoError(t, err)

	views, err = f.svc.CheckedIn(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "ana@school.edu", views[0].Identity.Key)
	assert.Equal(t, domain.CheckedIn, views[0].Session.Status)
}

func TestAttendanceService_ConcurrentLoginsAppendOneEvent(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	f.enroll(t, "ana@school.edu", 10, axis(0))

	raw, img := capture(t, 100)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)

	var ok, already atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Login(context.Background(), raw)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadyLoggedIn):
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), already.Load())
	assert.Len(t, f.dayEvents(t), 1)
}

func TestAttendanceService_RosterCSV(t *testing.T) {
	f := newFixture(t, PolicyUnified)

	var buf bytes.Buffer
	assert.ErrorIs(t, f.svc.RosterCSV(context.Background(), &buf), domain.ErrNoRegisteredUsers)

	f.enroll(t, "ana@school.edu", 10, axis(0))
	require.NoError(t, f.svc.RosterCSV(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Name,Email,Phone Number,Class,Division,Image Path,Embeddings Path\n")
	assert.Contains(t, buf.String(), "Test User,ana@school.edu,")
}

func TestAttendanceService_AttendanceArchive(t *testing.T) {
	f := newFixture(t, PolicyUnified)
	ctx := context.Background()

	var buf bytes.Buffer
	assert.ErrorIs(t, f.svc.AttendanceArchive(ctx, &buf), domain.ErrNoAttendanceLogs)
	assert.Zero(t, buf.Len())

	f.enroll(t, "ana@school.edu", 10, axis(0))
	raw, img := capture(t, 110)
	f.provider.On("CheckLiveness", mock.Anything, img, 0.9).Return(live, nil)
	f.provider.On("ExtractEmbeddings", mock.Anything, img).Return([]domain.Embedding{axis(0)}, nil)
	_, err := f.svc.Login(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, f.svc.AttendanceArchive(ctx, &buf))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "2024-03-01.csv", zr.File[0].Name)
}
