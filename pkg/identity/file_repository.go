package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const identityFileName = "identity.json"

// fileData is the on-disk layout of identity.json.
type fileData struct {
	Users     []User     `json:"users"`
	Roles     []Role     `json:"roles"`
	UserRoles []UserRole `json:"user_roles"`
}

// FileStore implements Store using a JSON file. Every commit rewrites the
// file; the in-memory state is rolled back when the write fails.
type FileStore struct {
	dataDir string
	mutex   sync.RWMutex
	state   *memoryState
}

// NewFileStore creates a file-based store rooted at dataDir
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &FileStore{
		dataDir: dataDir,
		state:   newMemoryState(),
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	slog.Info("File store opened", "path", filepath.Join(dataDir, identityFileName),
		"users", len(store.state.users), "roles", len(store.state.roles))
	return store, nil
}

func (s *FileStore) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(s), nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) userByID(ctx context.Context, id uuid.UUID) (User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.userByID(id)
}

func (s *FileStore) userByEmail(ctx context.Context, email string) (User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.userByEmail(email)
}

func (s *FileStore) roleByName(ctx context.Context, name string) (Role, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.roleByName(name)
}

func (s *FileStore) apply(ctx context.Context, changes changeSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.state.validate(changes); err != nil {
		return err
	}

	snapshot := s.state.clone()
	s.state.apply(changes)

	if err := s.save(); err != nil {
		s.state = snapshot
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads identity data from file
func (s *FileStore) load() error {
	filePath := filepath.Join(s.dataDir, identityFileName)

	// If file doesn't exist, start with empty state
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	changes := changeSet{users: fd.Users, roles: fd.Roles, userRoles: fd.UserRoles}
	state := newMemoryState()
	if err := state.validate(changes); err != nil {
		return fmt.Errorf("invalid data in %s: %w", filePath, err)
	}
	state.apply(changes)
	s.state = state

	return nil
}

// save writes identity data to file atomically
func (s *FileStore) save() error {
	fd := fileData{
		Users:     make([]User, 0, len(s.state.users)),
		Roles:     make([]Role, 0, len(s.state.roles)),
		UserRoles: []UserRole{},
	}
	for _, u := range s.state.users {
		fd.Users = append(fd.Users, u)
	}
	for _, r := range s.state.roles {
		fd.Roles = append(fd.Roles, r)
	}
	sort.Slice(fd.Users, func(i, j int) bool { return fd.Users[i].ID.String() < fd.Users[j].ID.String() })
	sort.Slice(fd.Roles, func(i, j int) bool { return fd.Roles[i].ID.String() < fd.Roles[j].ID.String() })
	for _, u := range fd.Users {
		for _, roleID := range s.state.userRoles[u.ID] {
			fd.UserRoles = append(fd.UserRoles, UserRole{UserID: u.ID, RoleID: roleID})
		}
	}

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(s.dataDir, identityFileName+".tmp")
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(s.dataDir, identityFileName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
