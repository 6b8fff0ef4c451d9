package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
)

const fileExt = ".json"

var ErrNotFound = errors.New("session not found")

type Telegram struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Record is one account's session file.
type Record struct {
	Telegram   Telegram          `json:"telegram"`
	Blum       *model.Credential `json:"blum,omitempty"`
	WebAppData string            `json:"webAppData,omitempty"`
}

// Credential returns the stored credential when it is complete.
func (r Record) Credential() (model.Credential, bool) {
	if r.Blum == nil || !r.Blum.Complete() {
		return model.Credential{}, false
	}
	return *r.Blum, true
}

// Store keeps one JSON file per account under dir, named after the phone
// number the session was created with.
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(phone string) string {
	return filepath.Join(s.dir, normalizePhone(phone)+fileExt)
}

// List returns the stored phones in lexical order. A missing directory is an
// empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions dir: %w", err)
	}

	var phones []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		phones = append(phones, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(phones)
	return phones, nil
}

func (s *Store) Load(phone string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(phone)
}

func (s *Store) load(phone string) (Record, error) {
	data, err := os.ReadFile(s.path(phone))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, phone)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse session %s: %w", phone, err)
	}
	return rec, nil
}

func (s *Store) Save(phone string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(phone, rec)
}

func (s *Store) save(phone string, rec Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	target := s.path(phone)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// SaveCredential replaces only the stored credential of an existing session.
func (s *Store) SaveCredential(phone string, cred model.Credential) error {
	if !cred.Complete() {
		return fmt.Errorf("refusing to store incomplete credential for %s", phone)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(phone)
	if err != nil {
		return err
	}
	rec.Blum = &cred
	return s.save(phone, rec)
}

func normalizePhone(phone string) string {
	return strings.TrimPrefix(strings.TrimSpace(phone), "+")
}
