package layer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// MetaFile describes a layer package.
const MetaFile = "meta.yml"

// APIVersion is the layer format this engine reads and writes. Layers
// whose API differs in major or minor version are rejected.
const APIVersion = "v1.0.0"

var (
	// ErrIncompatible is returned for a layer written for another API.
	ErrIncompatible = errors.New("incompatible layer API")
	// ErrPlatformMismatch is returned for a layer built for the other
	// platform.
	ErrPlatformMismatch = errors.New("layer built for another platform")
	// ErrUnknownOption is returned when an enabled option does not exist.
	ErrUnknownOption = errors.New("unknown layer option")
	// ErrOptionRequired is returned when a required option group has no
	// enabled option.
	ErrOptionRequired = errors.New("required option not selected")
)

// Meta is the content of meta.yml.
type Meta struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version,omitempty"`
	API         string        `yaml:"api"`
	Platform    string        `yaml:"platform"`
	Description string        `yaml:"description,omitempty"`
	Groups      []OptionGroup `yaml:"options,omitempty"`
}

// OptionGroup is a set of options the user picks from.
type OptionGroup struct {
	Name     string   `yaml:"name"`
	Required bool     `yaml:"required,omitempty"`
	Options  []string `yaml:"options"`
}

// ParseMeta decodes meta.yml.
func ParseMeta(data []byte) (Meta, error) {
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("decoding %s: %w", MetaFile, err)
	}
	return m, nil
}

// CheckAPI rejects a layer whose API major.minor differs from
// APIVersion. The "v" prefix is optional.
func (m Meta) CheckAPI() error {
	api := m.API
	if !strings.HasPrefix(api, "v") {
		api = "v" + api
	}
	if !semver.IsValid(api) {
		return fmt.Errorf("%w: invalid version %q", ErrIncompatible, m.API)
	}
	if semver.MajorMinor(api) != semver.MajorMinor(APIVersion) {
		return fmt.Errorf("%w: layer %q uses %s, engine uses %s",
			ErrIncompatible, m.Name, semver.MajorMinor(api), semver.MajorMinor(APIVersion))
	}
	return nil
}

// CheckPlatform rejects a layer built for a platform other than e. A
// layer that does not name a platform is accepted.
func (m Meta) CheckPlatform(e types.Endian) error {
	if m.Platform == "" {
		return nil
	}
	got, err := types.ParseEndian(m.Platform)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlatformMismatch, err)
	}
	if got != e {
		return fmt.Errorf("%w: layer %q targets %s, deployment is %s", ErrPlatformMismatch, m.Name, got, e)
	}
	return nil
}

// CheckOptions validates a selection of enabled options against the
// groups the layer declares.
func (m Meta) CheckOptions(enabled []string) error {
	known := make(map[string]bool)
	for _, g := range m.Groups {
		for _, o := range g.Options {
			known[o] = true
		}
	}
	for _, o := range enabled {
		if !known[o] {
			return fmt.Errorf("%w: %q in layer %q", ErrUnknownOption, o, m.Name)
		}
	}
	for _, g := range m.Groups {
		if !g.Required {
			continue
		}
		if !slices.ContainsFunc(g.Options, func(o string) bool { return slices.Contains(enabled, o) }) {
			return fmt.Errorf("%w: group %q in layer %q", ErrOptionRequired, g.Name, m.Name)
		}
	}
	return nil
}
