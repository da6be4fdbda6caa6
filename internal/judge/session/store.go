package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reftester/internal/judge/model"
)

// Cookie is the persisted part of a judge cookie.
type Cookie struct {
	Name  string `json:"name" msgpack:"name"`
	Value string `json:"value" msgpack:"value"`
}

// Snapshot is a persisted judge login.
type Snapshot struct {
	Judge    model.JudgeID `json:"judge" msgpack:"judge"`
	Username string        `json:"username" msgpack:"username"`
	Cookies  []Cookie      `json:"cookies" msgpack:"cookies"`
	SavedAt  time.Time     `json:"saved_at" msgpack:"saved_at"`
}

// HTTPCookies converts the snapshot cookies for a cookie jar.
func (s Snapshot) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func snapshotCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Store persists judge logins between runs.
type Store interface {
	Load(ctx context.Context, judge model.JudgeID) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, judge model.JudgeID) error
}

// FileStore keeps every judge login in one JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context, judge model.JudgeID) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, ok := all[judge]
	return snap, ok, nil
}

func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return err
	}
	all[snap.Judge] = snap
	return s.write(all)
}

func (s *FileStore) Delete(_ context.Context, judge model.JudgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[judge]; !ok {
		return nil
	}
	delete(all, judge)
	if len(all) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove session state failed: %w", err)
		}
		return nil
	}
	return s.write(all)
}

func (s *FileStore) read() (map[model.JudgeID]Snapshot, error) {
	all := make(map[model.JudgeID]Snapshot)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("read session state failed: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse session state failed: %w", err)
	}
	return all, nil
}

func (s *FileStore) write(all map[model.JudgeID]Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state failed: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state failed: %w", err)
	}
	return nil
}
