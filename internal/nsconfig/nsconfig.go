// Package nsconfig bootstraps a namespace.Env from a YAML document: the
// namespaces and their aliases, reader feature flags and starting
// namespace a host wants in place before the first Eval, decoded into
// the fixed Config struct below.
package nsconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clj-embed/cloj/internal/namespace"
)

// Config is the top-level shape of a cloj.yaml bootstrap document.
type Config struct {
	// Namespaces lists namespaces to pre-create, each with optional
	// aliases onto other (already-listed) namespaces.
	Namespaces []NamespaceConfig `yaml:"namespaces"`

	// Features flips on reader-conditional feature tags (spec.md's
	// `#?(:feature-name ...)` dispatch), e.g. `["go", "repl"]`.
	Features []string `yaml:"features"`

	// CurrentNamespace sets Env's starting namespace; defaults to "user"
	// if empty, matching namespace.NewEnv's own default.
	CurrentNamespace string `yaml:"current_namespace"`
}

// NamespaceConfig describes one namespace to ensure at bootstrap, plus
// the aliases it resolves onto its peers.
type NamespaceConfig struct {
	Name    string            `yaml:"name"`
	Aliases map[string]string `yaml:"aliases"`
}

// Load reads and parses a YAML bootstrap file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bootstrap content from bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing nsconfig: %w", err)
	}
	return &cfg, nil
}

// Apply seeds env with this Config's namespaces, aliases, feature
// flags and current namespace. Namespace aliases are resolved in a
// second pass so a namespace can alias one declared later in the same
// document.
func (c *Config) Apply(env *namespace.Env) error {
	for _, nsc := range c.Namespaces {
		env.EnsureNamespace(nsc.Name)
	}
	for _, nsc := range c.Namespaces {
		ns, ok := env.Namespace(nsc.Name)
		if !ok {
			continue
		}
		for alias, target := range nsc.Aliases {
			targetNs, ok := env.Namespace(target)
			if !ok {
				return fmt.Errorf("nsconfig: namespace %q aliases undeclared namespace %q", nsc.Name, target)
			}
			ns.AddAlias(alias, targetNs)
		}
	}
	for _, tag := range c.Features {
		env.EnableFeature(tag)
	}
	if c.CurrentNamespace != "" {
		env.SetCurrentNamespace(c.CurrentNamespace)
	}
	return nil
}
