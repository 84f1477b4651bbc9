// Package profile implements the compliance-profile registry: a small,
// fixed, named set of configurations that parameterize which redaction
// stages run and which entity-type allowlist stage 2 uses. Profiles are
// immutable and baked in — this is deliberately not a policy engine.
package profile

import (
	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/ner"
)

// Name identifies a compliance profile.
type Name string

const (
	GDPR   Name = "GDPR"
	DORA   Name = "DORA"
	PCIDSS Name = "PCI_DSS"
	Full   Name = "full"
)

// Profile is an immutable bundle selecting which redaction stages run and
// which stage-2 entity types are allowed through.
type Profile struct {
	Name        Name
	Stage1      bool
	Stage2      bool
	EntityTypes map[string]struct{}
}

var registry = map[Name]Profile{
	GDPR: {
		Name:   GDPR,
		Stage1: true,
		Stage2: true,
		EntityTypes: set("NAME", "ADDRESS", "DATE_TIME", "PASSPORT_NUMBER", "DRIVER_ID"),
	},
	DORA: {
		Name:        DORA,
		Stage1:      true,
		Stage2:      false,
		EntityTypes: nil,
	},
	PCIDSS: {
		Name:        PCIDSS,
		Stage1:      true,
		Stage2:      false,
		EntityTypes: nil,
	},
	Full: {
		Name:        Full,
		Stage1:      true,
		Stage2:      true,
		EntityTypes: ner.AllowedTypes,
	},
}

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// Get is the profile registry's total function: get_profile(name) →
// Profile. Unknown names emit a warning to log and fall back to GDPR —
// the single case in this core where a malformed configuration does not
// terminate startup (spec's operator-ergonomics carve-out).
func Get(name string, log *logger.Logger) Profile {
	if p, ok := registry[Name(name)]; ok {
		return p
	}
	log.Warnf("profile_lookup", "Unknown compliance profile %q, falling back to GDPR", name)
	return registry[GDPR]
}

// AllowlistFingerprint deterministically identifies this profile's
// stage-2 entity-type allowlist, for use as a cache-key component so NER
// cache entries are never served across profiles with different
// allowlists (see nercache.Key).
func (p Profile) AllowlistFingerprint() string {
	return string(p.Name)
}
