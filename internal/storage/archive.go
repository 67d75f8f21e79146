package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ArchiveVersion is the payload format written by Save.
const ArchiveVersion = 1

// ErrArchiveInvalid is wrapped by every error caused by an archive file
// that exists but cannot be decrypted or decoded.
var ErrArchiveInvalid = errors.New("archive is invalid")

// ErrInvalidKey is returned when an archive key cannot be decoded.
var ErrInvalidKey = errors.New("invalid archive key")

// payload is the decrypted archive document.
type payload struct {
	Version    int                          `json:"version"`
	InstanceID string                       `json:"instance_id"`
	CreatedAt  time.Time                    `json:"created_at"`
	SavedAt    time.Time                    `json:"saved_at"`
	Sections   map[string]map[string][]byte `json:"sections"`
}

// ArchiveOptions configures OpenArchive.
type ArchiveOptions struct {
	Path string
	Key  *fernet.Key
	// Rewrite starts from an empty archive when the file is invalid
	// instead of failing.
	Rewrite bool
	Logger  zerolog.Logger
}

// Archive is a MemoryStore persisted as a single fernet token on disk.
type Archive struct {
	*MemoryStore

	path       string
	key        *fernet.Key
	instanceID uuid.UUID
	createdAt  time.Time
	logger     zerolog.Logger

	saveMu  sync.Mutex
	savedAt time.Time
}

// OpenArchive loads the archive at opts.Path. A missing file yields a new
// empty archive. An unreadable file is an error wrapping ErrArchiveInvalid
// unless opts.Rewrite is set.
func OpenArchive(opts ArchiveOptions) (*Archive, error) {
	if opts.Path == "" {
		return nil, errors.New("archive path must not be empty")
	}
	if opts.Key == nil {
		return nil, ErrInvalidKey
	}

	a := &Archive{
		MemoryStore: NewMemoryStore(),
		path:        opts.Path,
		key:         opts.Key,
		instanceID:  uuid.New(),
		createdAt:   time.Now().UTC(),
		logger:      opts.Logger,
	}

	raw, err := os.ReadFile(opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Info().Str("path", opts.Path).Msg("no archive found, starting a new one")
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	p, err := decode(raw, opts.Key)
	if err != nil {
		if !opts.Rewrite {
			return nil, err
		}
		a.logger.Warn().Err(err).Str("path", opts.Path).Msg("archive is invalid, rewriting it")
		return a, nil
	}

	if id, err := uuid.Parse(p.InstanceID); err == nil {
		a.instanceID = id
	}
	if !p.CreatedAt.IsZero() {
		a.createdAt = p.CreatedAt
	}
	a.savedAt = p.SavedAt
	a.MemoryStore.replace(p.Sections)
	a.logger.Info().
		Str("path", opts.Path).
		Str("instance_id", a.instanceID.String()).
		Int("sections", len(p.Sections)).
		Msg("archive loaded")
	return a, nil
}

func decode(raw []byte, key *fernet.Key) (payload, error) {
	var p payload
	tok := []byte(strings.TrimSpace(string(raw)))
	msg := fernet.VerifyAndDecrypt(tok, 0, []*fernet.Key{key})
	if msg == nil {
		return p, fmt.Errorf("%w: decryption failed", ErrArchiveInvalid)
	}
	if err := json.Unmarshal(msg, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrArchiveInvalid, err)
	}
	if p.Version != ArchiveVersion {
		return p, fmt.Errorf("%w: unsupported version %d", ErrArchiveInvalid, p.Version)
	}
	return p, nil
}

// Path returns the file the archive is saved to.
func (a *Archive) Path() string {
	return a.path
}

// InstanceID identifies the archive across saves.
func (a *Archive) InstanceID() uuid.UUID {
	return a.instanceID
}

// SavedAt returns the time of the last successful save, zero if never saved.
func (a *Archive) SavedAt() time.Time {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	return a.savedAt
}

// Save encrypts the current contents and replaces the file atomically.
// It returns the size of the written token.
func (a *Archive) Save() (int, error) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	now := time.Now().UTC()
	doc, err := json.Marshal(payload{
		Version:    ArchiveVersion,
		InstanceID: a.instanceID.String(),
		CreatedAt:  a.createdAt,
		SavedAt:    now,
		Sections:   a.MemoryStore.export(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode archive: %w", err)
	}
	tok, err := fernet.EncryptAndSign(doc, a.key)
	if err != nil {
		return 0, fmt.Errorf("encrypt archive: %w", err)
	}

	if err := writeFileAtomic(a.path, tok, 0o600); err != nil {
		return 0, fmt.Errorf("write archive: %w", err)
	}
	a.savedAt = now
	a.logger.Debug().Str("path", a.path).Int("bytes", len(tok)).Msg("archive saved")
	return len(tok), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// GenerateKey returns a new encoded fernet key.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return k.Encode(), nil
}

// ParseKey decodes an encoded fernet key.
func ParseKey(encoded string) (*fernet.Key, error) {
	k, err := fernet.DecodeKey(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// KeyPath returns the key file kept next to an archive.
func KeyPath(archivePath string) string {
	return archivePath + ".key"
}

// LoadKey resolves the archive key. A non-empty envKey wins; otherwise the
// key file next to the archive is read, and generated when missing.
func LoadKey(archivePath, envKey string) (*fernet.Key, error) {
	if envKey != "" {
		return ParseKey(envKey)
	}

	path := KeyPath(archivePath)
	raw, err := os.ReadFile(path)
	if err == nil {
		return ParseKey(string(raw))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read archive key: %w", err)
	}

	encoded, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write archive key: %w", err)
	}
	return ParseKey(encoded)
}
