package friends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/eyelink/client/internal/models"
)

// AnswerStore persists the answers a Book recorded so they survive the process.
type AnswerStore interface {
	Load(ctx context.Context) (map[string]models.FriendRequestStatus, error)
	Save(ctx context.Context, answers map[string]models.FriendRequestStatus) error
}

type answersFile struct {
	Answers map[string]models.FriendRequestStatus `json:"answers"`
}

// FileAnswers is a JSON file backed AnswerStore.
type FileAnswers struct {
	path string
	mu   sync.Mutex
}

// NewFileAnswers returns an AnswerStore persisting to path.
func NewFileAnswers(path string) *FileAnswers {
	return &FileAnswers{path: path}
}

// Load returns the stored answers. A missing file is an empty set.
func (f *FileAnswers) Load(context.Context) (map[string]models.FriendRequestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]models.FriendRequestStatus{}, nil
		}
		return nil, fmt.Errorf("read friend answers: %w", err)
	}

	var file answersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse friend answers: %w", err)
	}
	if file.Answers == nil {
		file.Answers = map[string]models.FriendRequestStatus{}
	}
	return file.Answers, nil
}

// Save replaces the stored answers.
func (f *FileAnswers) Save(_ context.Context, answers map[string]models.FriendRequestStatus) error {
	data, err := json.Marshal(answersFile{Answers: answers})
	if err != nil {
		return fmt.Errorf("encode friend answers: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".answers-*")
	if err != nil {
		return fmt.Errorf("write friend answers: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write friend answers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write friend answers: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write friend answers: %w", err)
	}
	return nil
}
