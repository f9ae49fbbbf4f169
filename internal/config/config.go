// Package config loads the trystat YAML configuration: hosts, the LUCI
// project, and named builder groups.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v2"
)

// BuilderRef names one builder within a bucket.
type BuilderRef struct {
	Builder string `yaml:"builder"`
	Bucket  string `yaml:"bucket"`
}

// Config is the top-level configuration file shape.
type Config struct {
	Project         string                  `yaml:"project"`
	BuildbucketHost string                  `yaml:"buildbucket_host"`
	GerritHost      string                  `yaml:"gerrit_host"`
	Groups          map[string][]BuilderRef `yaml:"groups"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Project:         "chromium",
		BuildbucketHost: "cr-buildbucket.appspot.com",
		GerritHost:      "chromium-review.googlesource.com",
	}
}

// Load reads a YAML configuration file, filling unset fields from Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	for group, refs := range cfg.Groups {
		for i, ref := range refs {
			if ref.Builder == "" {
				return Config{}, fmt.Errorf("parse %s: group %q entry %d has no builder", path, group, i)
			}
			if ref.Bucket == "" {
				cfg.Groups[group][i].Bucket = "try"
			}
		}
	}
	return cfg, nil
}

// ExpandGroup returns the builders of a named group. Unknown names produce an
// error listing the known groups.
func (c Config) ExpandGroup(name string) ([]BuilderRef, error) {
	refs, ok := c.Groups[name]
	if !ok {
		known := make([]string, 0, len(c.Groups))
		for group := range c.Groups {
			known = append(known, group)
		}
		sort.Strings(known)
		if len(known) == 0 {
			return nil, fmt.Errorf("unknown builder group %q: no groups configured", name)
		}
		return nil, fmt.Errorf("unknown builder group %q: known groups are %s", name, strings.Join(known, ", "))
	}
	return refs, nil
}
