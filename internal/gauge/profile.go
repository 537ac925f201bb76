// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gauge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the on-disk description of a gauge face and its motor.
type Profile struct {
	Name           string       `yaml:"name"`
	StepsPerRev    int          `yaml:"steps_per_rev"`
	BacklashSteps  int          `yaml:"backlash_steps"`
	HomeOffset     int          `yaml:"home_offset"`
	HomeRPM        uint32       `yaml:"home_rpm"`
	FinestRPM      uint32       `yaml:"finest_rpm"`
	MaxHomingSteps int          `yaml:"max_homing_steps"`
	Tiers          []Tier       `yaml:"tiers"`
	Filter         FilterParams `yaml:"filter"`
	Table          []Point      `yaml:"table"`
}

// DefaultProfile is the 0-240 km/h speedometer face.
func DefaultProfile() Profile {
	cfg := DefaultConfig()
	return Profile{
		Name:           "speedometer",
		StepsPerRev:    cfg.StepsPerRev,
		BacklashSteps:  cfg.BacklashSteps,
		HomeOffset:     cfg.HomeOffset,
		HomeRPM:        cfg.HomeRPM,
		FinestRPM:      cfg.FinestRPM,
		MaxHomingSteps: cfg.MaxHomingSteps,
		Tiers:          cfg.Tiers,
		Filter:         cfg.Filter,
		Table: []Point{
			{0, 0}, {20, 101}, {30, 176}, {40, 246}, {50, 315}, {60, 382},
			{70, 452}, {80, 522}, {90, 599}, {100, 673}, {110, 744}, {120, 800},
			{130, 877}, {140, 957}, {150, 1033}, {160, 1108}, {170, 1181}, {180, 1255},
			{190, 1326}, {200, 1398}, {210, 1464}, {220, 1539}, {230, 1610}, {240, 1687},
		},
	}
}

// ParseProfile decodes YAML over DefaultProfile, so omitted keys keep their
// defaults.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("gauge: parse profile: %w", err)
	}
	return p, nil
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("gauge: read profile: %w", err)
	}
	return ParseProfile(data)
}

// Build validates the profile and returns the controller config and table.
func (p Profile) Build() (Config, *CalibrationTable, error) {
	table, err := NewCalibrationTable(p.Table)
	if err != nil {
		return Config{}, nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	if p.StepsPerRev <= 0 {
		return Config{}, nil, fmt.Errorf("profile %q: steps_per_rev must be positive", p.Name)
	}
	if p.Filter.ExitMoving > p.Filter.EnterMoving {
		return Config{}, nil, fmt.Errorf("profile %q: filter exit_moving above enter_moving", p.Name)
	}
	maxHoming := p.MaxHomingSteps
	if maxHoming <= 0 {
		maxHoming = 2 * p.StepsPerRev
	}
	return Config{
		StepsPerRev:    p.StepsPerRev,
		BacklashSteps:  p.BacklashSteps,
		Tiers:          p.Tiers,
		FinestRPM:      p.FinestRPM,
		HomeRPM:        p.HomeRPM,
		HomeOffset:     p.HomeOffset,
		MaxHomingSteps: maxHoming,
		Filter:         p.Filter,
	}, table, nil
}

// Marshal encodes the profile as YAML.
func (p Profile) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("gauge: encode profile: %w", err)
	}
	return data, nil
}

// SaveProfile writes p to path as YAML.
func SaveProfile(path string, p Profile) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("gauge: write profile: %w", err)
	}
	return nil
}
