// Package credentials exposes provider key material from configuration and the environment.
package credentials

import (
	"context"
	"os"
	"strings"

	"github.com/canvasflow/server/internal/port/outbound"
)

// EnvPrefix prefixes credential environment overrides, e.g. CANVAS_KLING_SECRET_KEY.
const EnvPrefix = "CANVAS_"

// ConfigStore implements CredentialStorePort over configured values.
// An environment variable named EnvPrefix + upper(name) overrides the configured value.
type ConfigStore struct {
	values map[string]string
	getenv func(string) string
}

// NewConfigStore creates a store from configured credentials keyed by name.
func NewConfigStore(values map[string]string) *ConfigStore {
	return newConfigStore(values, os.Getenv)
}

func newConfigStore(values map[string]string, getenv func(string) string) *ConfigStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &ConfigStore{values: copied, getenv: getenv}
}

// Lookup returns the credential and whether it is present. Blank values count as absent.
func (s *ConfigStore) Lookup(ctx context.Context, name string) (string, bool) {
	if v := strings.TrimSpace(s.getenv(EnvName(name))); v != "" {
		return v, true
	}
	v := strings.TrimSpace(s.values[name])
	return v, v != ""
}

// EnvName returns the environment variable that overrides a credential.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(name)
}

// Compile-time interface check
var _ outbound.CredentialStorePort = (*ConfigStore)(nil)
