package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
)

var (
	ErrLevelNotFound = service.ErrLevelNotFound
	ErrInvalidLevel  = engine.ErrInvalidLevel
)

// levelExtensions are tried in order when a level is named without one
var levelExtensions = []string{".json", ".yaml", ".yml"}

// Manager handles level loading and caching
type Manager struct {
	levelDir     string
	defaultLevel *engine.LevelConfig
	levels       map[string]*engine.LevelConfig
	mu           sync.RWMutex
}

// NewManager creates a new level manager
func NewManager(levelDir string) (*Manager, error) {
	// Ensure level directory exists
	if _, err := os.Stat(levelDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("level directory does not exist: %s", levelDir)
	}

	m := &Manager{
		levelDir: levelDir,
		levels:   make(map[string]*engine.LevelConfig),
	}

	// Load default level
	if err := m.loadDefaultLevel(); err != nil {
		return nil, fmt.Errorf("failed to load default level: %w", err)
	}

	return m, nil
}

// Dir returns the watched level directory
func (m *Manager) Dir() string {
	return m.levelDir
}

// levelID strips the extension of a level file name
func levelID(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// findFile resolves a level name to a file in the level directory
func (m *Manager) findFile(name string) (string, error) {
	if engine.IsLevelFile(name) {
		path := filepath.Join(m.levelDir, filepath.Base(name))
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", ErrLevelNotFound
			}
			return "", fmt.Errorf("failed to stat level file: %w", err)
		}
		return path, nil
	}

	for _, ext := range levelExtensions {
		path := filepath.Join(m.levelDir, filepath.Base(name)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrLevelNotFound
}

// LoadLevel loads a level by name. The name is the file name with or
// without its extension. Levels are cached by file name so foo.json and
// foo.yaml stay distinct.
func (m *Manager) LoadLevel(name string) (*engine.LevelConfig, error) {
	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}
	key := filepath.Base(path)

	m.mu.RLock()
	// Check cache first
	if level, exists := m.levels[key]; exists {
		m.mu.RUnlock()
		return level, nil
	}
	m.mu.RUnlock()

	// Load from file
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if level, exists := m.levels[key]; exists {
		return level, nil
	}

	return m.loadLocked(key, path)
}

// loadLocked reads, validates and caches one level file. m.mu must be held.
func (m *Manager) loadLocked(key, path string) (*engine.LevelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read level file: %w", err)
	}

	format, _ := engine.FormatFromPath(path)
	level, err := engine.DecodeLevel(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse level %s: %w", filepath.Base(path), err)
	}

	if err := engine.ValidateLevel(level); err != nil {
		return nil, fmt.Errorf("level %s: %w", filepath.Base(path), err)
	}

	m.levels[key] = level
	return level, nil
}

// ListLevels returns every valid level in the directory, ordered by level
// id and then file name. Invalid files are skipped.
func (m *Manager) ListLevels() ([]*service.LevelInfo, error) {
	entries, err := os.ReadDir(m.levelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read level directory: %w", err)
	}

	var levels []*service.LevelInfo

	for _, entry := range entries {
		if entry.IsDir() || !engine.IsLevelFile(entry.Name()) {
			continue
		}

		level, err := m.LoadLevel(entry.Name())
		if err != nil {
			// Skip invalid levels
			continue
		}

		levels = append(levels, &service.LevelInfo{
			Filename:       entry.Name(),
			LevelID:        levelID(entry.Name()),
			ID:             level.ID,
			Name:           level.Name,
			Description:    level.Description,
			Width:          level.Width,
			Height:         level.Height,
			Agents:         len(level.Agents),
			StrictSegments: level.StrictSegments,
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].ID != levels[j].ID {
			return levels[i].ID < levels[j].ID
		}
		return levels[i].Filename < levels[j].Filename
	})

	return levels, nil
}

// Sequence returns the ordered levels a session plays, starting at from.
// An empty from starts at the first level. from matches a level id or,
// case-insensitively, a display name.
func (m *Manager) Sequence(from string) ([]*engine.LevelConfig, error) {
	infos, err := m.ListLevels()
	if err != nil {
		return nil, err
	}

	start := 0
	if from != "" {
		start = -1
		key := levelID(from)
		for i, info := range infos {
			if info.LevelID == key || strings.EqualFold(info.Name, from) {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, ErrLevelNotFound
		}
	}

	levels := make([]*engine.LevelConfig, 0, len(infos)-start)
	for _, info := range infos[start:] {
		level, err := m.LoadLevel(info.Filename)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// GetDefault returns the default level
func (m *Manager) GetDefault() *engine.LevelConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultLevel
}

// RefreshCache drops every cached level and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.levels = make(map[string]*engine.LevelConfig)
	m.mu.Unlock()

	return m.loadDefaultLevel()
}

// loadDefaultLevel picks the first listed level, falling back to the
// built-in one when the directory has no valid level.
func (m *Manager) loadDefaultLevel() error {
	level := engine.DefaultLevelConfig()

	infos, err := m.ListLevels()
	if err == nil && len(infos) > 0 {
		if first, err := m.LoadLevel(infos[0].Filename); err == nil {
			level = first
		}
	}

	m.mu.Lock()
	m.defaultLevel = level
	m.mu.Unlock()
	return nil
}

// SaveLevel validates a level and writes it to disk as JSON
func (m *Manager) SaveLevel(name string, level *engine.LevelConfig) error {
	// Validate level before saving
	if err := engine.ValidateLevel(level); err != nil {
		return err
	}

	key := levelID(filepath.Base(name))
	if key == "" || key == "." {
		return fmt.Errorf("%w: level file name is required", ErrInvalidLevel)
	}

	data, err := engine.EncodeLevel(level, engine.FormatJSON)
	if err != nil {
		return fmt.Errorf("failed to marshal level: %w", err)
	}

	filename := key + ".json"
	path := filepath.Join(m.levelDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write level file: %w", err)
	}

	// Update cache
	m.mu.Lock()
	m.levels[filename] = level
	m.mu.Unlock()

	return nil
}
