package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/linkmonitor/internal/probe"
)

// Target is one monitored endpoint as configured.
type Target struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Description string `yaml:"description"`
	Port        int    `yaml:"port"`
	Probe       string `yaml:"probe"` // auto, tcp, icmp or http
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// ParseTargets decodes and validates a targets document.
func ParseTargets(data []byte) ([]Target, error) {
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	return normalize(f.Targets)
}

// LoadTargets reads the targets file at path.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTargets(data)
}

// ResolveTargets loads cfg.TargetsFile, falling back to the TARGETS list
// when the file does not exist.
func ResolveTargets(cfg Config) ([]Target, error) {
	ts, err := LoadTargets(cfg.TargetsFile)
	if err == nil {
		return ts, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || len(cfg.InlineTargets) == 0 {
		return nil, err
	}
	inline := make([]Target, 0, len(cfg.InlineTargets))
	for _, a := range cfg.InlineTargets {
		inline = append(inline, Target{Address: a})
	}
	return normalize(inline)
}

func normalize(in []Target) ([]Target, error) {
	if len(in) == 0 {
		return nil, errors.New("no targets configured")
	}
	seen := make(map[string]bool, len(in))
	out := make([]Target, 0, len(in))
	for i, t := range in {
		t.Address = strings.TrimSpace(t.Address)
		t.Name = strings.TrimSpace(t.Name)
		if t.Address == "" {
			return nil, fmt.Errorf("target %d: address is required", i)
		}
		if t.Name == "" {
			t.Name = t.Address
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("target %q defined twice", t.Name)
		}
		seen[t.Name] = true
		if t.Port < 0 || t.Port > 65535 {
			return nil, fmt.Errorf("target %q: invalid port %d", t.Name, t.Port)
		}
		t.Probe = strings.ToLower(strings.TrimSpace(t.Probe))
		if t.Probe == "" {
			t.Probe = probe.StrategyAuto
		}
		switch t.Probe {
		case probe.StrategyAuto, probe.StrategyTCP, probe.StrategyICMP, probe.StrategyHTTP:
		default:
			return nil, fmt.Errorf("target %q: unknown probe %q", t.Name, t.Probe)
		}
		out = append(out, t)
	}
	return out, nil
}
