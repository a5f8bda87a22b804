package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/eyelink/client/internal/models"
)

// ErrInvalidRole is returned when storing a role other than seeker or helper.
var ErrInvalidRole = errors.New("invalid role")

// RoleStore persists the role selected at login. Unlike the token it is not secret.
type RoleStore interface {
	Role(ctx context.Context) (models.Role, error)
	SetRole(ctx context.Context, role models.Role) error
	ClearRole(ctx context.Context) error
}

type preferencesFile struct {
	Role models.Role `json:"role"`
}

// Preferences is a JSON file backed RoleStore.
type Preferences struct {
	path string
	mu   sync.Mutex
}

// NewPreferences returns a RoleStore persisting to path.
func NewPreferences(path string) *Preferences {
	return &Preferences{path: path}
}

// Role returns the stored role or ErrNotFound.
func (p *Preferences) Role(context.Context) (models.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read preferences: %w", err)
	}

	var prefs preferencesFile
	if err := json.Unmarshal(data, &prefs); err != nil {
		return "", fmt.Errorf("parse preferences: %w", err)
	}
	if !prefs.Role.Valid() {
		return "", ErrNotFound
	}
	return prefs.Role, nil
}

// SetRole stores role.
func (p *Preferences) SetRole(_ context.Context, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	data, err := json.Marshal(preferencesFile{Role: role})
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return writeFileAtomic(p.path, data, 0o644)
}

// ClearRole removes the preference file.
func (p *Preferences) ClearRole(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove preferences: %w", err)
	}
	return nil
}

// MemoryRoles is an in-memory RoleStore.
type MemoryRoles struct {
	mu   sync.Mutex
	role models.Role
}

// Role returns the stored role or ErrNotFound.
func (m *MemoryRoles) Role(context.Context) (models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role == "" {
		return "", ErrNotFound
	}
	return m.role, nil
}

// SetRole stores role.
func (m *MemoryRoles) SetRole(_ context.Context, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	m.mu.Lock()
	m.role = role
	m.mu.Unlock()
	return nil
}

// ClearRole forgets the stored role.
func (m *MemoryRoles) ClearRole(context.Context) error {
	m.mu.Lock()
	m.role = ""
	m.mu.Unlock()
	return nil
}
