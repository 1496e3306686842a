// Package config holds the data model a collaborator supplies to and
// reads back from the multirig core: RigConfig/AppConfig describe the
// desired state; the core never persists them itself.
package config

import "fmt"

// BandPreset is a labeled frequency range plus a default center
// frequency, used both for UI presentation and for the client's
// band-policy check.
type BandPreset struct {
	Label    string `json:"label"`
	CenterHz int    `json:"center_hz"`
	LowerHz  int    `json:"lower_hz"`
	UpperHz  int    `json:"upper_hz"`
	Enabled  bool   `json:"enabled"`
}

func (p BandPreset) validate() error {
	if p.LowerHz > p.CenterHz || p.CenterHz > p.UpperHz {
		return fmt.Errorf("band preset %q: expected lower_hz <= center_hz <= upper_hz, got %d/%d/%d",
			p.Label, p.LowerHz, p.CenterHz, p.UpperHz)
	}
	return nil
}

// RigConfig describes one rig: how to reach it and how it participates
// in polling, sync and band enforcement.
type RigConfig struct {
	Name string `json:"name"`

	// ModelID is a free-form, informational Hamlib model identifier
	// carried through to the rig's snapshot. The core only implements
	// the rigctld TCP transport (see Non-goals); this field exists so
	// a collaborator's UI can still label a rig by model.
	ModelID string `json:"model_id,omitempty"`

	Host string `json:"host"`
	Port int    `json:"port"`

	Enabled        bool         `json:"enabled"`
	FollowMain     bool         `json:"follow_main"`
	AllowOutOfBand bool         `json:"allow_out_of_band"`
	PollIntervalMs int          `json:"poll_interval_ms"`
	BandPresets    []BandPreset `json:"band_presets"`
}

func (c RigConfig) validate() error {
	if c.PollIntervalMs < 100 {
		return fmt.Errorf("rig %q: poll_interval_ms must be >= 100, got %d", c.Name, c.PollIntervalMs)
	}
	seen := make(map[string]bool, len(c.BandPresets))
	for _, p := range c.BandPresets {
		if seen[p.Label] {
			return fmt.Errorf("rig %q: duplicate band preset label %q", c.Name, p.Label)
		}
		seen[p.Label] = true
		if err := p.validate(); err != nil {
			return fmt.Errorf("rig %q: %w", c.Name, err)
		}
	}
	return nil
}

// EnabledPresets returns the subset of BandPresets with Enabled=true, the
// set the band-policy check evaluates against.
func (c RigConfig) EnabledPresets() []BandPreset {
	out := make([]BandPreset, 0, len(c.BandPresets))
	for _, p := range c.BandPresets {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// AppConfig is the full configuration a collaborator loads at startup
// and can push at runtime via an atomic reconfigure.
type AppConfig struct {
	Rigs []RigConfig `json:"rigs"`

	SyncSourceIndex     int    `json:"sync_source_index"`
	SyncEnabled         bool   `json:"sync_enabled"`
	RigctlToMainEnabled bool   `json:"rigctl_to_main_enabled"`
	RigctlListenHost    string `json:"rigctl_listen_host"`
	RigctlListenPort    int    `json:"rigctl_listen_port"`
	AllRigsEnabled      bool   `json:"all_rigs_enabled"`
}

// Validate checks every invariant: per-rig validity plus a sync source
// index that names an actual rig.
func (c AppConfig) Validate() error {
	if len(c.Rigs) == 0 {
		return fmt.Errorf("app config: at least one rig is required")
	}
	if c.SyncSourceIndex < 0 || c.SyncSourceIndex >= len(c.Rigs) {
		return fmt.Errorf("app config: sync_source_index %d out of range [0,%d)", c.SyncSourceIndex, len(c.Rigs))
	}
	for i, r := range c.Rigs {
		if err := r.validate(); err != nil {
			return fmt.Errorf("app config: rig %d: %w", i, err)
		}
	}
	return nil
}

// Default returns an AppConfig with sane defaults for a single rig at
// the standard rigctld port, mirroring the shape a fresh installation
// would present before the collaborator's config store overlays it.
func Default() AppConfig {
	return AppConfig{
		Rigs: []RigConfig{{
			Name:           "Rig A",
			Host:           "127.0.0.1",
			Port:           4532,
			Enabled:        true,
			FollowMain:     false,
			PollIntervalMs: 750,
		}},
		SyncSourceIndex:     0,
		SyncEnabled:         true,
		RigctlToMainEnabled: true,
		RigctlListenHost:    "0.0.0.0",
		RigctlListenPort:    4534,
		AllRigsEnabled:      true,
	}
}
