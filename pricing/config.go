// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package pricing

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// UnitYaml is the on-disk representation of a schedule unit.
type UnitYaml struct {
	ID         string `yaml:"id"`
	Category   string `yaml:"category"`
	StoreRate  string `yaml:"store-rate"`
	UpdateRate string `yaml:"update-rate"`
	FreeTier   bool   `yaml:"free-tier"`
}

// ScheduleConfig is a pflag.Value that holds a fee schedule loaded from
// YAML. The flag accepts either inline YAML or a path to a .yaml file.
type ScheduleConfig struct {
	units []UnitYaml
}

// Type returns the type of the pflag.Value.
func (*ScheduleConfig) Type() string { return "pricing.ScheduleConfig" }

// String returns the YAML representation of the configured schedule.
func (s *ScheduleConfig) String() string {
	if len(s.units) == 0 {
		return ""
	}
	out, err := yaml.Marshal(s.units)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Set parses the schedule from the given string. If the string names a
// .yaml file, the schedule is read from that file instead.
func (s *ScheduleConfig) Set(value string) error {
	if value == "" {
		s.units = nil
		return nil
	}

	data := []byte(value)
	if strings.HasSuffix(value, ".yaml") {
		read, err := os.ReadFile(value)
		if err != nil {
			return Error.Wrap(err)
		}
		data = read
	}

	var units []UnitYaml
	if err := yaml.Unmarshal(data, &units); err != nil {
		return Error.Wrap(err)
	}

	s.units = units
	return nil
}

// ToSchedule converts the configured units to a validated Schedule.
// An empty configuration yields the default schedule.
func (s *ScheduleConfig) ToSchedule() (*Schedule, error) {
	if len(s.units) == 0 {
		return DefaultSchedule(), nil
	}

	units := make([]Unit, 0, len(s.units))
	for _, entry := range s.units {
		storeRate, err := decimal.NewFromString(entry.StoreRate)
		if err != nil {
			return nil, Error.New("unit %q: invalid store rate: %w", entry.ID, err)
		}
		updateRate, err := decimal.NewFromString(entry.UpdateRate)
		if err != nil {
			return nil, Error.New("unit %q: invalid update rate: %w", entry.ID, err)
		}
		units = append(units, Unit{
			ID:         entry.ID,
			Category:   Category(entry.Category),
			StoreRate:  storeRate,
			UpdateRate: updateRate,
			FreeTier:   entry.FreeTier,
		})
	}
	return NewSchedule(units)
}
