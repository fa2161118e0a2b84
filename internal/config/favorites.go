package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Favorite is a named snapshot of the six routing fields, kept so a known
// good setup can be restored from the dashboard.
type Favorite struct {
	Name      string                 `json:"name"`
	Config    map[string]interface{} `json:"config"`
	CreatedAt string                 `json:"created_at"`
}

// FavoriteFields are the keys every favorite snapshot must carry.
var FavoriteFields = []string{
	"sonnet_provider", "haiku_provider", "opus_provider",
	"sonnet_model", "haiku_model", "opus_model",
}

// FavoritesStore is a file-backed list of favorites. Every operation
// reads and rewrites favorites.json under the store lock.
type FavoritesStore struct {
	mu   sync.Mutex
	path string
}

func NewFavoritesStore(path string) *FavoritesStore {
	return &FavoritesStore{path: path}
}

// List returns the stored favorites, oldest first.
func (s *FavoritesStore) List() ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add appends a favorite and returns the updated list.
func (s *FavoritesStore) Add(name string, cfg map[string]interface{}) ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	favorites, err := s.load()
	if err != nil {
		return nil, err
	}
	favorites = append(favorites, Favorite{
		Name:      name,
		Config:    cfg,
		CreatedAt: time.Now().Format(time.RFC3339),
	})
	if err := s.save(favorites); err != nil {
		return nil, err
	}
	return favorites, nil
}

// Remove deletes the favorite at index and returns the updated list.
// The bool reports whether the index was in range.
func (s *FavoritesStore) Remove(index int) ([]Favorite, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	favorites, err := s.load()
	if err != nil {
		return nil, false, err
	}
	if index < 0 || index >= len(favorites) {
		return favorites, false, nil
	}
	favorites = append(favorites[:index], favorites[index+1:]...)
	if err := s.save(favorites); err != nil {
		return nil, false, err
	}
	return favorites, true, nil
}

func (s *FavoritesStore) load() ([]Favorite, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Favorite{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	var favorites []Favorite
	if err := json.Unmarshal(data, &favorites); err != nil {
		return nil, fmt.Errorf("parse favorites: %w", err)
	}
	return favorites, nil
}

func (s *FavoritesStore) save(favorites []Favorite) error {
	data, err := json.MarshalIndent(favorites, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
