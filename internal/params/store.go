package params

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store keeps the operator's last TX parameters in a YAML file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved parameters, or Default when nothing was saved yet.
func (s *Store) Load() (Params, error) {
	p := Default()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return p, nil
}

// Remember saves p if it is a TX configuration. RX configurations reuse the
// saved TX values and are not persisted.
func (s *Store) Remember(p Params) error {
	if p.Mode != ModeTX {
		return nil
	}
	return s.Save(p)
}

// Save writes p unconditionally.
func (s *Store) Save(p Params) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// ForRX returns an RX configuration seeded from the saved TX parameters: the
// receiver listens on the channel and PHY the transmitter uses.
func ForRX(saved Params) Params {
	p := saved
	p.Mode = ModeRX
	p.RxChannel = saved.TxChannel
	p.RxPhyCode = saved.TxPhyCode
	return p
}
