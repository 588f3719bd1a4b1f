package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"delegate/internal/services"
)

const infoSuffix = ".info.json"

// Store persists session metadata in a spool directory, one
// <id>.info.json document per session.
type Store struct {
	dir string
}

// NewStore ensures the spool directory exists and returns a store rooted at it.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("sessions directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the spool directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// InfoPath returns the metadata path for the given id.
func (s *Store) InfoPath(id string) string {
	return filepath.Join(s.dir, id+infoSuffix)
}

// TranscriptPath returns the transcript path for the given id. The transcript
// is written by the subordinate agent process, never by this store.
func (s *Store) TranscriptPath(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Create persists a new record. It fails when a record for the id already
// exists; id uniqueness is enforced only here, at creation time.
func (s *Store) Create(info *Info) error {
	if err := ValidateID(info.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", info.ID, err)
	}
	file, err := os.OpenFile(s.InfoPath(info.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return services.Wrap(services.ErrAlreadyExists, "session", "create",
				fmt.Sprintf("session %q already exists", info.ID), nil)
		}
		return fmt.Errorf("create session %s: %w", info.ID, err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write session %s: %w", info.ID, err)
	}
	return nil
}

// Load reads the record for the given id.
func (s *Store) Load(id string) (*Info, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.InfoPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "session", "load",
				fmt.Sprintf("session %q not found", id), nil)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &info, nil
}

// Close flips the record to closed and rewrites it. Closing an already closed
// session rewrites the same fields; metadata and transcript stay on disk so
// the session remains resumable.
func (s *Store) Close(id string) error {
	info, err := s.Load(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	info.Status = StatusClosed
	info.ClosedAt = &now
	return s.rewrite(info)
}

// Purge removes metadata and transcript. It is idempotent; purging an absent
// session is not an error.
func (s *Store) Purge(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	for _, path := range []string{s.InfoPath(id), s.TranscriptPath(id), s.lockPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// List returns every readable, well-formed record sorted by creation time.
// Corrupted records are skipped silently.
func (s *Store) List() ([]*Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	infos := make([]*Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), infoSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var info Info
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		if info.ID == "" {
			continue
		}
		infos = append(infos, &info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

func (s *Store) rewrite(info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", info.ID, err)
	}
	tmp := s.InfoPath(info.ID) + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", info.ID, err)
	}
	if err := os.Rename(tmp, s.InfoPath(info.ID)); err != nil {
		return fmt.Errorf("replace session %s: %w", info.ID, err)
	}
	return nil
}
