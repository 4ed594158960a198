package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const logPrefix = "bootstrap:loader"

// EnvWorkersFile names the environment variable consulted for the manifest path.
const EnvWorkersFile = "WORKERS_FILE"

// LoadManifest loads the worker manifest. Paths passed in are tried first,
// then WORKERS_FILE, then config/workers.json and workers.json. When none can
// be read the built-in default is returned. A file that exists but does not
// parse or validate is skipped with a warning.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvWorkersFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/workers.json", "workers.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := ParseManifest(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Skipping workers file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d worker entries from %s", logPrefix, len(m.Workers), p))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default worker manifest", logPrefix))
	return DefaultManifest(), nil
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - failed to parse manifest: %w", logPrefix, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultManifest registers the built-in core:system worker.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:        "apex-default",
		Version:     "1.0.0",
		Description: "Built-in system workers",
		Workers: []WorkerEntry{
			{RoutingKey: "core.system", Worker: "core:system", Version: "1.0.0"},
		},
	}
}

// MergeManifests appends override's entries to base. Name and version come
// from override when set.
func MergeManifests(base, override *Manifest) *Manifest {
	merged := *base
	merged.Workers = append(append([]WorkerEntry(nil), base.Workers...), override.Workers...)
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}
