// Package filestore keeps the gallery and attendance logs as plain files:
// a roster CSV, one JSON embedding per identity and one CSV log per day.
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// RosterFile is the roster name inside the db directory
const RosterFile = "user_details.csv"

type embeddingFile struct {
	Key       string           `json:"key"`
	Embedding domain.Embedding `json:"embedding"`
	CreatedAt time.Time        `json:"created_at"`
}

// IdentityRepository implements repository.IdentityRepositoryInterface on a directory
type IdentityRepository struct {
	mu  sync.RWMutex
	dir string
	now func() time.Time
}

func NewIdentityRepository(dir string) (*IdentityRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return &IdentityRepository{dir: dir, now: time.Now}, nil
}

func (r *IdentityRepository) rosterPath() string {
	return filepath.Join(r.dir, RosterFile)
}

func (r *IdentityRepository) embeddingPath(key string) string {
	return filepath.Join(r.dir, key+".json")
}

// readRoster returns nil when the roster does not exist yet
func (r *IdentityRepository) readRoster() ([]domain.Identity, error) {
	f, err := os.Open(r.rosterPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var identities []domain.Identity
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		if header {
			header = false
			continue
		}
		id, err := repository.ParseRosterRecord(record)
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		identities = append(identities, id)
	}

	return identities, nil
}

func (r *IdentityRepository) readEmbedding(key string) (*embeddingFile, error) {
	data, err := os.ReadFile(r.embeddingPath(key))
	if err != nil {
		return nil, fmt.Errorf("read embedding %s: %w", key, err)
	}
	var ef embeddingFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("decode embedding %s: %w", key, err)
	}
	return &ef, nil
}

func (r *IdentityRepository) List(ctx context.Context) ([]domain.GalleryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities, err := r.readRoster()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.GalleryEntry, 0, len(identities))
	for _, id := range identities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ef, err := r.readEmbedding(id.Key)
		if err != nil {
			return nil, err
		}
		id.CreatedAt = ef.CreatedAt
		entries = append(entries, domain.GalleryEntry{Identity: id, Embedding: ef.Embedding})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity.Key < entries[j].Identity.Key
	})

	return entries, nil
}

func (r *IdentityRepository) Get(ctx context.Context, key string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key = domain.NormalizeKey(key)
	identities, err := r.readRoster()
	if err != nil {
		return nil, err
	}
	for _, id := range identities {
		if id.Key == key {
			found := id
			return &found, nil
		}
	}
	return nil, domain.ErrUnregisteredIdentity
}

func (r *IdentityRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.Get(ctx, key)
	if errors.Is(err, domain.ErrUnregisteredIdentity) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create writes the embedding file and then appends the roster row. A failed
// roster append removes the embedding file again.
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity, embedding domain.Embedding) error {
	if len(embedding) == 0 {
		return domain.ErrValidationFailed.WithError(errors.New("empty embedding"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	identity.Key = domain.NormalizeKey(identity.Key)
	if err := checkKey(identity.Key); err != nil {
		return err
	}

	identities, err := r.readRoster()
	if err != nil {
		return err
	}
	for _, id := range identities {
		if id.Key == identity.Key {
			return domain.ErrAlreadyRegistered
		}
	}

	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = r.now()
	}
	identity.EmbeddingRef = r.embeddingPath(identity.Key)

	data, err := json.Marshal(embeddingFile{Key: identity.Key, Embedding: embedding, CreatedAt: identity.CreatedAt})
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	if err := writeFileAtomic(identity.EmbeddingRef, data); err != nil {
		return fmt.Errorf("write embedding: %w", err)
	}

	if err := r.appendRoster(*identity); err != nil {
		_ = os.Remove(identity.EmbeddingRef)
		return fmt.Errorf("append roster: %w", err)
	}

	return nil
}

func (r *IdentityRepository) appendRoster(identity domain.Identity) error {
	withHeader := true
	if info, err := os.Stat(r.rosterPath()); err == nil && info.Size() > 0 {
		withHeader = false
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if withHeader {
		if err := cw.Write(repository.RosterHeader); err != nil {
			return err
		}
	}
	if err := cw.Write(repository.RosterRecord(identity)); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	f, err := os.OpenFile(r.rosterPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// checkKey rejects keys that cannot be used as a file name
func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("key %q is not a valid file name", key))
	}
	return nil
}

// writeFileAtomic replaces path through a temp file in the same directory
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

var _ repository.IdentityRepositoryInterface = (*IdentityRepository)(nil)
