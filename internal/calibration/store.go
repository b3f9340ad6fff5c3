package calibration

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrNoProfile is returned by Load when nothing has been stored yet.
var ErrNoProfile = errors.New("no stored calibration profile")

// Store keeps one profile in a YAML file.
type Store struct {
	Path string
}

// Load reads and validates the stored profile.
func (s Store) Load() (Profile, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Profile{}, ErrNoProfile
	}
	if err != nil {
		return Profile{}, errors.Wrapf(err, "read %s", s.Path)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, errors.Wrapf(err, "parse %s", s.Path)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, errors.Wrapf(err, "stored profile %s", s.Path)
	}
	return p, nil
}

// LoadOrDefault returns the stored profile, or the default one when none
// exists yet. A corrupt or invalid file is still an error.
func (s Store) LoadOrDefault() (Profile, error) {
	p, err := s.Load()
	if errors.Is(err, ErrNoProfile) {
		return DefaultProfile(), nil
	}
	return p, err
}

// Save writes p atomically. Invalid profiles are refused so a good file is
// never replaced by a bad one.
func (s Store) Save(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode profile")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.yaml")
	if err != nil {
		return errors.Wrap(err, "create temp profile")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp profile")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp profile")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.Path), "replace %s", s.Path)
}
