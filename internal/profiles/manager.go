package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/database"
)

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// extensions lists the recognised profile formats in lookup order.
var extensions = []string{".yaml", ".yml", ".toml"}

// Profile is a datasource definition saved under a logical name.
type Profile struct {
	Name     string
	Path     string
	Type     string
	Location string
	Modified time.Time
}

// Manager discovers and persists datasource profiles under a directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = "configs"
	}
	return &Manager{dir: dir}
}

// FromSettings uses the profile directory from the environment.
func FromSettings() (*Manager, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return NewManager(settings.ProfileDir), nil
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns all readable profiles, optionally only those of one database type.
func (m *Manager) List(expectedType string) ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if expectedType != "" {
		expectedType = config.NormalizeType(expectedType)
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || !hasProfileExt(entry.Name()) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		cfg, err := config.LoadConfig(path)
		if err != nil {
			continue
		}
		if expectedType != "" && cfg.Database.Type != expectedType {
			continue
		}
		info, err := entry.Info()
		profiles = append(profiles, Profile{
			Name:     strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:     path,
			Type:     cfg.Database.Type,
			Location: cfg.Describe(),
			Modified: modifiedTime(info, err),
		})
	}

	return profiles, nil
}

func modifiedTime(info os.FileInfo, err error) time.Time {
	if err != nil || info == nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Save writes cfg as YAML under alias and returns the resulting profile.
func (m *Manager) Save(alias string, cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, err
	}

	base := strings.TrimSpace(alias)
	if base == "" {
		base = fmt.Sprintf("%s-%s", cfg.Database.Type, time.Now().Format("20060102_150405"))
	}
	if hasProfileExt(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	base = sanitizeName(base) + ".yaml"

	path := filepath.Join(m.dir, base)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, err
	}

	return Profile{
		Name:     strings.TrimSuffix(base, ".yaml"),
		Path:     path,
		Type:     cfg.Database.Type,
		Location: cfg.Describe(),
		Modified: time.Now(),
	}, nil
}

// Load reads a profile by alias or file path.
func (m *Manager) Load(alias string) (*config.Config, error) {
	path, err := m.path(alias)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// Provider resolves alias to a connection provider for the transfer engine.
func (m *Manager) Provider(alias string) (database.Provider, *config.Config, error) {
	cfg, err := m.Load(alias)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve datasource %q: %w", alias, err)
	}
	return database.FromConfig(cfg), cfg, nil
}

func (m *Manager) Delete(alias string) error {
	path, err := m.path(alias)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// path maps an alias onto an existing file. Anything that looks like a path
// is used as is.
func (m *Manager) path(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}

	if strings.ContainsRune(alias, os.PathSeparator) || hasProfileExt(alias) {
		candidates := []string{alias}
		if !strings.ContainsRune(alias, os.PathSeparator) {
			candidates = append(candidates, filepath.Join(m.dir, alias))
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("profile not found: %s", alias)
	}

	for _, ext := range extensions {
		candidate := filepath.Join(m.dir, alias+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("profile not found: %s", alias)
}

func hasProfileExt(name string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(name)))
}

func sanitizeName(input string) string {
	cleaned := fileNameSanitizer.ReplaceAllString(input, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
