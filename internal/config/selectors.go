package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Logical control names used by the locator and the sequencer
const (
	UpChip          = "up_chip"
	DownChip        = "down_chip"
	WagerInput      = "wager_input"
	MultiplierInput = "multiplier_input"
	PlaceBetButton  = "place_bet_button"
	CashOutButton   = "cash_out_button"
	PositionRows    = "position_rows"
	PositionHeaders = "position_headers"
	ConfirmDialog   = "confirm_dialog"
	SiteMessage     = "site_message"
)

// Selectors maps a logical control name to ordered CSS/XPath fallbacks.
// Entries starting with "xpath:" or "/" are XPath, everything else is CSS.
type Selectors struct {
	Controls  map[string][]string `yaml:"controls" toml:"controls"`
	Blacklist []string            `yaml:"blacklist" toml:"blacklist"`
}

// DefaultSelectors mirrors the last known page layout
func DefaultSelectors() *Selectors {
	return &Selectors{
		Controls: map[string][]string{
			UpChip:          {".css-1p91j2k"},
			DownChip:        {".css-qv9fap"},
			WagerInput:      {`.css-14hgewr input[type="text"]`},
			MultiplierInput: {`div.css-14hgewr input[type="text"]:nth-child(2)`},
			PlaceBetButton:  {"button.css-1wit1e6", "button.css-4jqfnv", `button[type="submit"]`},
			CashOutButton:   {"button.css-nja62m"},
			PositionRows:    {"tbody tr.css-jbcm9e", "tbody tr", `tr[class*="css-"]`},
			PositionHeaders: {"thead th"},
			ConfirmDialog:   {`[role="dialog"]`, `[class*="modal"]`, `[class*="dialog"]`},
			SiteMessage:     {`[role="alert"]`, `[class*="toast"]`, `[class*="notification"]`, `[class*="error"]`},
		},
		Blacklist: []string{
			".css-1psueex",
			`[class*="cashier"]`,
			`a[href*="cashier"]`,
			`a[href*="/casino"]`,
			`a[href*="/sports"]`,
		},
	}
}

// Get returns the selectors for a logical name
func (s *Selectors) Get(name string) []string {
	if s == nil {
		return nil
	}
	return s.Controls[name]
}

// merge fills names missing from s with defaults
func (s *Selectors) merge(def *Selectors) {
	if s.Controls == nil {
		s.Controls = make(map[string][]string)
	}
	for name, sels := range def.Controls {
		if len(s.Controls[name]) == 0 {
			s.Controls[name] = sels
		}
	}
	if s.Blacklist == nil {
		s.Blacklist = def.Blacklist
	}
}

// LoadSelectors reads a selector file. The format follows the extension:
// .toml is TOML, anything else is YAML. Missing names fall back to defaults.
func LoadSelectors(path string) (*Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors: %w", err)
	}

	sel := &Selectors{}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), sel); err != nil {
			return nil, fmt.Errorf("parse selectors %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, sel); err != nil {
			return nil, fmt.Errorf("parse selectors %s: %w", path, err)
		}
	}

	sel.merge(DefaultSelectors())
	return sel, nil
}

// SaveSelectors writes sel to path in the format implied by the extension
func SaveSelectors(path string, sel *Selectors) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(sel); err != nil {
			return err
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(sel); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// SelectorStore holds the current selector set; safe for concurrent use
type SelectorStore struct {
	mu  sync.RWMutex
	cur *Selectors
}

// NewSelectorStore wraps sel; nil means defaults
func NewSelectorStore(sel *Selectors) *SelectorStore {
	if sel == nil {
		sel = DefaultSelectors()
	}
	return &SelectorStore{cur: sel}
}

// Selectors returns the current set
func (s *SelectorStore) Selectors() *Selectors {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Replace swaps in a freshly loaded set
func (s *SelectorStore) Replace(sel *Selectors) {
	s.mu.Lock()
	s.cur = sel
	s.mu.Unlock()
}
