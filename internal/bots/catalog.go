package bots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogSchemaVersion is the current catalog override schema.
const CatalogSchemaVersion = 1

// CatalogOverrides is the operator-editable view of the bot catalog:
// which bots run and which sit out. It round-trips through YAML (or
// JSON) so a deployment can pin its bot set in version control.
type CatalogOverrides struct {
	Version    int           `yaml:"version" json:"version"`
	ExportedAt time.Time     `yaml:"exported_at,omitempty" json:"exported_at,omitempty"`
	Bots       []BotOverride `yaml:"bots" json:"bots"`
}

// BotOverride is one bot's entry in the override file. A nil Enabled
// leaves the shipped default in place.
type BotOverride struct {
	Name     string   `yaml:"name" json:"name"`
	Category Category `yaml:"category,omitempty" json:"category,omitempty"`
	Enabled  *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Note     string   `yaml:"note,omitempty" json:"note,omitempty"`
}

// ExportCatalog renders the registry's current catalog as a YAML
// override file: every bot listed, enabled flags reflecting the
// overrides already applied.
func (r *Registry) ExportCatalog() ([]byte, error) {
	out := CatalogOverrides{
		Version:    CatalogSchemaVersion,
		ExportedAt: time.Now().UTC(),
		Bots:       make([]BotOverride, 0, len(r.bots)),
	}
	for _, b := range r.bots {
		enabled := true
		if ov, ok := r.overrides[b.Name()]; ok {
			enabled = ov
		}
		e := enabled
		out.Bots = append(out.Bots, BotOverride{
			Name:     b.Name(),
			Category: b.Category(),
			Enabled:  &e,
		})
	}

	var buf bytes.Buffer
	buf.WriteString("# Bot catalog overrides\n")
	buf.WriteString(fmt.Sprintf("# Schema version: %d\n", CatalogSchemaVersion))
	buf.WriteString("# Set enabled: false to bench a bot without redeploying.\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close catalog encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportCatalog parses an override file. YAML is the native format;
// JSON input is accepted for API callers.
func ImportCatalog(data []byte) (*CatalogOverrides, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty catalog data")
	}

	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{'
		break
	}

	var o CatalogOverrides
	if isJSON {
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("failed to parse catalog as JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse catalog as YAML: %w", err)
	}

	if o.Version <= 0 || o.Version > CatalogSchemaVersion {
		return nil, fmt.Errorf("unsupported catalog schema version %d", o.Version)
	}
	for i, b := range o.Bots {
		if b.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no bot name", i)
		}
	}
	return &o, nil
}

// ImportCatalogFile reads and parses an override file from disk.
func ImportCatalogFile(path string) (*CatalogOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	o, err := ImportCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to import catalog from %s: %w", path, err)
	}
	return o, nil
}
