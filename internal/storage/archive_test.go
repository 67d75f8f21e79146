package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sedorikku1949/MioEngine/internal/logging"
	"github.com/Sedorikku1949/MioEngine/internal/metrics"
)

func testKey(t *testing.T) *fernet.Key {
	t.Helper()
	encoded, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	return key
}

func openTestArchive(t *testing.T, path string, key *fernet.Key, rewrite bool) (*Archive, error) {
	t.Helper()
	return OpenArchive(ArchiveOptions{
		Path:    path,
		Key:     key,
		Rewrite: rewrite,
		Logger:  logging.Nop(),
	})
}

// TestArchive tests loading and saving the encrypted archive
func TestArchive(t *testing.T) {
	t.Run("missing file starts empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.mefs")

		a, err := openTestArchive(t, path, testKey(t), false)
		if err != nil {
			t.Fatalf("OpenArchive: %v", err)
		}
		if len(a.Sections()) != 0 {
			t.Errorf("Expected empty archive, got %v", a.Sections())
		}
		if !a.SavedAt().IsZero() {
			t.Error("New archive should never have been saved")
		}
	})

	t.Run("save and reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "archive.mefs")
		key := testKey(t)

		a, err := openTestArchive(t, path, key, false)
		if err != nil {
			t.Fatalf("OpenArchive: %v", err)
		}
		a.Put("guilds", "42", []byte("en"))
		a.Put("users", "7", []byte{0, 1, 2})

		n, err := a.Save()
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if n == 0 {
			t.Error("Save should report the written size")
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Archive file missing: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("Expected mode 0600, got %o", perm)
		}

		// File content must not leak plaintext
		raw, _ := os.ReadFile(path)
		if bytes.Contains(raw, []byte("guilds")) {
			t.Error("Archive file contains plaintext section name")
		}

		b, err := openTestArchive(t, path, key, false)
		if err != nil {
			t.Fatalf("Reopen: %v", err)
		}
		if b.InstanceID() != a.InstanceID() {
			t.Errorf("Instance id changed across reload: %s != %s", b.InstanceID(), a.InstanceID())
		}
		value, err := b.Get("users", "7")
		if err != nil || !bytes.Equal(value, []byte{0, 1, 2}) {
			t.Errorf("Expected reloaded value, got %v, %v", value, err)
		}
		if b.SavedAt().IsZero() {
			t.Error("Reloaded archive should carry saved_at")
		}

		// No temporary files left behind
		entries, _ := os.ReadDir(filepath.Dir(path))
		if len(entries) != 1 {
			t.Errorf("Expected only the archive in its directory, got %d entries", len(entries))
		}
	})

	t.Run("wrong key is invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.mefs")

		a, _ := openTestArchive(t, path, testKey(t), false)
		a.Put("s", "k", []byte("v"))
		if _, err := a.Save(); err != nil {
			t.Fatalf("Save: %v", err)
		}

		_, err := openTestArchive(t, path, testKey(t), false)
		if !errors.Is(err, ErrArchiveInvalid) {
			t.Errorf("Expected ErrArchiveInvalid, got %v", err)
		}
	})

	t.Run("garbage with rewrite starts empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.mefs")
		if err := os.WriteFile(path, []byte("not a token"), 0o600); err != nil {
			t.Fatal(err)
		}

		if _, err := openTestArchive(t, path, testKey(t), false); !errors.Is(err, ErrArchiveInvalid) {
			t.Errorf("Expected ErrArchiveInvalid without rewrite, got %v", err)
		}

		a, err := openTestArchive(t, path, testKey(t), true)
		if err != nil {
			t.Fatalf("Expected rewrite to recover, got %v", err)
		}
		if len(a.Sections()) != 0 {
			t.Errorf("Rewritten archive should be empty, got %v", a.Sections())
		}
	})

	t.Run("unsupported version is invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.mefs")
		key := testKey(t)

		tok, err := fernet.EncryptAndSign([]byte(`{"version":99,"sections":{}}`), key)
		if err != nil {
			t.Fatal(err)
		}
		os.WriteFile(path, tok, 0o600)

		if _, err := openTestArchive(t, path, key, false); !errors.Is(err, ErrArchiveInvalid) {
			t.Errorf("Expected ErrArchiveInvalid, got %v", err)
		}
	})

	t.Run("nil key is rejected", func(t *testing.T) {
		_, err := openTestArchive(t, filepath.Join(t.TempDir(), "a"), nil, false)
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey, got %v", err)
		}
	})
}

// TestLoadKey tests archive key resolution
func TestLoadKey(t *testing.T) {
	t.Run("env key wins", func(t *testing.T) {
		encoded, _ := GenerateKey()
		path := filepath.Join(t.TempDir(), "archive.mefs")

		key, err := LoadKey(path, encoded)
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if key.Encode() != encoded {
			t.Error("Expected the env key to be used")
		}
		if _, err := os.Stat(KeyPath(path)); !os.IsNotExist(err) {
			t.Error("Key file should not be written when the env key is set")
		}
	})

	t.Run("invalid env key", func(t *testing.T) {
		_, err := LoadKey("archive.mefs", "short")
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("key file generated once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "archive.mefs")

		first, err := LoadKey(path, "")
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		info, err := os.Stat(KeyPath(path))
		if err != nil {
			t.Fatalf("Key file not written: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("Expected mode 0600, got %o", perm)
		}

		second, err := LoadKey(path, "")
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if first.Encode() != second.Encode() {
			t.Error("Second load should reuse the generated key")
		}
	})
}

type countingSaver struct {
	calls atomic.Int32
	err   error
}

func (s *countingSaver) Save() (int, error) {
	s.calls.Add(1)
	return 128, s.err
}

// TestAutosaver tests the scheduled archive saves
func TestAutosaver(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewAutosaver(&countingSaver{}, AutosaveOptions{Schedule: "every tuesday"})
		if err == nil {
			t.Error("Expected an error for an invalid schedule")
		}
	})

	t.Run("save now records outcome", func(t *testing.T) {
		m := metrics.New()
		saver := &countingSaver{}
		as, err := NewAutosaver(saver, AutosaveOptions{Schedule: "@every 1h", Logger: logging.Nop(), Metrics: m})
		if err != nil {
			t.Fatalf("NewAutosaver: %v", err)
		}

		if err := as.SaveNow(); err != nil {
			t.Errorf("SaveNow: %v", err)
		}
		saver.err = errors.New("disk full")
		if err := as.SaveNow(); err == nil {
			t.Error("Expected SaveNow to report the failure")
		}

		if saver.calls.Load() != 2 {
			t.Errorf("Expected 2 saves, got %d", saver.calls.Load())
		}
		series, err := testutil.GatherAndCount(m.Registry(), "mio_archive_saves_total")
		if err != nil {
			t.Fatalf("GatherAndCount: %v", err)
		}
		if series != 2 {
			t.Errorf("Expected ok and error series, got %d", series)
		}
	})

	t.Run("schedule fires", func(t *testing.T) {
		saver := &countingSaver{}
		as, err := NewAutosaver(saver, AutosaveOptions{Schedule: "@every 1s", Logger: logging.Nop()})
		if err != nil {
			t.Fatalf("NewAutosaver: %v", err)
		}
		as.Start()

		deadline := time.Now().Add(3 * time.Second)
		for saver.calls.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := as.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
		if saver.calls.Load() == 0 {
			t.Error("Expected at least one scheduled save")
		}
	})
}
