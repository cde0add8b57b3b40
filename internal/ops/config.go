// Package ops loads and resolves the JSON runtime configuration: symbol
// registry, shard layout, risk limits, journal settings and synthetic flow
// parameters. FileConfig mirrors the file layout; Loaded is the validated,
// resolved form the binaries consume.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/decimal"

	"matchbook/internal/flowgen"
	"matchbook/internal/journal"
	"matchbook/internal/risk"
	"matchbook/internal/schema"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig     `json:"registry"`
	Exchange ExchangeConfig     `json:"exchange"`
	Risk     risk.Config        `json:"risk"`
	Journal  JournalConfig      `json:"journal"`
	Flow     flowgen.Config     `json:"flow"`
	Store    StoreConfig        `json:"store"`
	Features FeatureFlagsConfig `json:"features"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues"`
	Symbols []SymbolConfig `json:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
}

// SymbolConfig describes a symbol entry. Tick is a human-readable decimal
// price increment, resolved against the symbol's price scale.
type SymbolConfig struct {
	Name  string           `json:"name"`
	Venue string           `json:"venue"`
	Scale schema.ScaleSpec `json:"scale"`
	Tick  decimal.Decimal  `json:"tick"`
}

// ExchangeConfig sets the facade's structural knobs.
type ExchangeConfig struct {
	Shards        int    `json:"shards"`
	SnapshotDepth int    `json:"snapshotDepth"`
	Source        uint16 `json:"source"`
	QueueSize     int    `json:"queueSize"`
}

// JournalConfig mirrors the journal writer settings in the file.
type JournalConfig struct {
	Enabled            bool   `json:"enabled"`
	Dir                string `json:"dir"`
	SegmentMaxBytes    int64  `json:"segmentMaxBytes"`
	SegmentMaxDuration string `json:"segmentMaxDuration"`
	FlushInterval      string `json:"flushInterval"`
	SyncInterval       string `json:"syncInterval"`
	FilePrefix         string `json:"filePrefix"`
	SnapshotPath       string `json:"snapshotPath"`
}

// StoreConfig points the trade store at a database.
type StoreConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableFlow    *bool `json:"enableFlow"`
	EnableJournal *bool `json:"enableJournal"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableFlow    bool
	EnableJournal bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry      *schema.Registry
	Shards        int
	SnapshotDepth int
	Source        uint16
	QueueSize     int
	Risk          risk.Config
	Journal       journal.Config
	SnapshotPath  string
	JournalOn     bool
	Flow          flowgen.Config
	Store         StoreConfig
	Features      FeatureFlags
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed FileConfig and builds the registry.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	journalCfg, err := resolveJournal(cfg.Journal)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Exchange.Shards <= 0 {
		cfg.Exchange.Shards = 1
	}
	features := resolveFeatures(cfg.Features)
	return Loaded{
		Registry:      registry,
		Shards:        cfg.Exchange.Shards,
		SnapshotDepth: cfg.Exchange.SnapshotDepth,
		Source:        cfg.Exchange.Source,
		QueueSize:     cfg.Exchange.QueueSize,
		Risk:          cfg.Risk,
		Journal:       journalCfg,
		SnapshotPath:  cfg.Journal.SnapshotPath,
		JournalOn:     cfg.Journal.Enabled && features.EnableJournal,
		Flow:          cfg.Flow,
		Store:         cfg.Store,
		Features:      features,
	}, nil
}

// LoadRegistry reads a JSON config file and only builds the registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return buildRegistry(cfg.Registry)
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("venue not found: %s", sym.Venue)
		}
		if err := validateScale(sym.Scale); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", sym.Name, err)
		}
		tick, err := ParseScaled(string(sym.Tick), sym.Scale.PriceScale)
		if err != nil {
			return nil, fmt.Errorf("invalid tick for %s: %w", sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale, schema.Price(tick)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

func resolveJournal(cfg JournalConfig) (journal.Config, error) {
	out := journal.Config{
		Dir:             cfg.Dir,
		SegmentMaxBytes: cfg.SegmentMaxBytes,
		FilePrefix:      cfg.FilePrefix,
	}
	var err error
	if out.SegmentMaxDuration, err = parseDuration(cfg.SegmentMaxDuration); err != nil {
		return journal.Config{}, fmt.Errorf("invalid segmentMaxDuration: %w", err)
	}
	if out.FlushInterval, err = parseDuration(cfg.FlushInterval); err != nil {
		return journal.Config{}, fmt.Errorf("invalid flushInterval: %w", err)
	}
	if out.SyncInterval, err = parseDuration(cfg.SyncInterval); err != nil {
		return journal.Config{}, fmt.Errorf("invalid syncInterval: %w", err)
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableFlow:    true,
		EnableJournal: true,
	}
	if cfg.EnableFlow != nil {
		flags.EnableFlow = *cfg.EnableFlow
	}
	if cfg.EnableJournal != nil {
		flags.EnableJournal = *cfg.EnableJournal
	}
	return flags
}

// ParseScaled converts a decimal string like "0.01" into an integer scaled
// by 10^scale, rejecting excess fractional digits instead of rounding.
func ParseScaled(s string, scale schema.Scale) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	neg := false
	i := 0
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		i++
	}
	var intPart, fracPart int64
	var fracDigits int
	seenDot := false
	seenDigit := false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '.':
			if seenDot {
				return 0, fmt.Errorf("malformed decimal %q", s)
			}
			seenDot = true
		case c >= '0' && c <= '9':
			seenDigit = true
			d := int64(c - '0')
			if seenDot {
				if fracDigits >= int(scale) {
					if d != 0 {
						return 0, fmt.Errorf("decimal %q exceeds scale %d", s, scale)
					}
					continue
				}
				fracPart = fracPart*10 + d
				fracDigits++
			} else {
				intPart = intPart*10 + d
			}
		default:
			return 0, fmt.Errorf("malformed decimal %q", s)
		}
	}
	if !seenDigit {
		return 0, fmt.Errorf("malformed decimal %q", s)
	}
	mul := int64(1)
	for j := schema.Scale(0); j < scale; j++ {
		mul *= 10
	}
	for j := fracDigits; j < int(scale); j++ {
		fracPart *= 10
	}
	value := intPart*mul + fracPart
	if neg {
		value = -value
	}
	return value, nil
}
