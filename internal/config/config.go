// Package config loads the rewriter's settings from .guardmod.yaml and the
// GUARDMOD_* environment on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jward/guardmod/internal/locate"
	"github.com/jward/guardmod/internal/rewrite"
)

// FileName is the config file looked up in the repository root.
const FileName = ".guardmod.yaml"

// Balancer names accepted in Config.Balancer.
const (
	BalancerBraces     = "braces"
	BalancerTreeSitter = "treesitter"
)

// Config is the complete rewriter configuration.
type Config struct {
	Annotations  AnnotationsConfig `yaml:"annotations" mapstructure:"annotations"`
	Guard        GuardConfig       `yaml:"guard" mapstructure:"guard"`
	Imports      []ImportConfig    `yaml:"imports" mapstructure:"imports"`
	Style        StyleConfig       `yaml:"style" mapstructure:"style"`
	Extensions   []string          `yaml:"extensions" mapstructure:"extensions"`
	Balancer     string            `yaml:"balancer" mapstructure:"balancer"`
	Ledger       LedgerConfig      `yaml:"ledger" mapstructure:"ledger"`
	SelectScript string            `yaml:"select_script" mapstructure:"select_script"`
	Parallel     int               `yaml:"parallel" mapstructure:"parallel"`
}

// AnnotationsConfig names the annotations declarations are anchored on.
type AnnotationsConfig struct {
	Primary        []string `yaml:"primary" mapstructure:"primary"`
	Secondary      []string `yaml:"secondary" mapstructure:"secondary"`
	Fallback       string   `yaml:"fallback" mapstructure:"fallback"`
	ContainerToken string   `yaml:"container_token" mapstructure:"container_token"`
}

// GuardConfig names the guard type and its members.
type GuardConfig struct {
	Type             string `yaml:"type" mapstructure:"type"`
	Var              string `yaml:"var" mapstructure:"var"`
	Acquire          string `yaml:"acquire" mapstructure:"acquire"`
	Release          string `yaml:"release" mapstructure:"release"`
	Uncached         string `yaml:"uncached" mapstructure:"uncached"`
	ReleaseFlag      string `yaml:"release_flag" mapstructure:"release_flag"`
	CachedAnnotation string `yaml:"cached_annotation" mapstructure:"cached_annotation"`
	SharedAnnotation string `yaml:"shared_annotation" mapstructure:"shared_annotation"`
	SharedKey        string `yaml:"shared_key" mapstructure:"shared_key"`
}

// ImportConfig is one import line added to rewritten files.
type ImportConfig struct {
	Line       string   `yaml:"line" mapstructure:"line"`
	SkipIf     []string `yaml:"skip_if,omitempty" mapstructure:"skip_if"`
	SharedOnly bool     `yaml:"shared_only,omitempty" mapstructure:"shared_only"`
}

// StyleConfig is the external style gate run after a batch.
type StyleConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Command []string `yaml:"command" mapstructure:"command"`
	Passes  int      `yaml:"passes" mapstructure:"passes"`
}

// LedgerConfig controls the run ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns the configuration for wrapping Truffle message exports in
// the GraalPy GIL.
func Default() *Config {
	pc := locate.DefaultPatternConfig()
	g := rewrite.DefaultGuard()

	cfg := &Config{
		Annotations: AnnotationsConfig{
			Primary:        pc.Primary,
			Secondary:      pc.Secondary,
			Fallback:       pc.Fallback,
			ContainerToken: pc.ContainerToken,
		},
		Guard: GuardConfig{
			Type:             g.Type,
			Var:              g.Var,
			Acquire:          g.Acquire,
			Release:          g.Release,
			Uncached:         g.Uncached,
			ReleaseFlag:      g.ReleaseFlag,
			CachedAnnotation: g.CachedAnnotation,
			SharedAnnotation: g.SharedAnnotation,
			SharedKey:        g.SharedKey,
		},
		Style: StyleConfig{
			Enabled: true,
			Command: []string{"mx", "python-gate", "--tags", "style,python-license"},
			Passes:  2,
		},
		Extensions: []string{".java"},
		Balancer:   BalancerBraces,
		Ledger:     LedgerConfig{Enabled: true, Path: filepath.Join(".guardmod", "ledger.db")},
	}
	for _, imp := range rewrite.DefaultImportSet() {
		cfg.Imports = append(cfg.Imports, ImportConfig{Line: imp.Line, SkipIf: imp.SkipIf, SharedOnly: imp.SharedOnly})
	}
	return cfg
}

// Load reads the config at explicitPath, or FileName in repoRoot when
// explicitPath is empty. A missing FileName is not an error; a missing
// explicit file is.
func Load(repoRoot, explicitPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("GUARDMOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(repoRoot)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that file values merge key by key and
// environment overrides apply to nested settings.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("annotations.primary", d.Annotations.Primary)
	v.SetDefault("annotations.secondary", d.Annotations.Secondary)
	v.SetDefault("annotations.fallback", d.Annotations.Fallback)
	v.SetDefault("annotations.container_token", d.Annotations.ContainerToken)

	v.SetDefault("guard.type", d.Guard.Type)
	v.SetDefault("guard.var", d.Guard.Var)
	v.SetDefault("guard.acquire", d.Guard.Acquire)
	v.SetDefault("guard.release", d.Guard.Release)
	v.SetDefault("guard.uncached", d.Guard.Uncached)
	v.SetDefault("guard.release_flag", d.Guard.ReleaseFlag)
	v.SetDefault("guard.cached_annotation", d.Guard.CachedAnnotation)
	v.SetDefault("guard.shared_annotation", d.Guard.SharedAnnotation)
	v.SetDefault("guard.shared_key", d.Guard.SharedKey)

	imports := make([]map[string]any, len(d.Imports))
	for i, imp := range d.Imports {
		m := map[string]any{"line": imp.Line, "shared_only": imp.SharedOnly}
		if len(imp.SkipIf) > 0 {
			m["skip_if"] = imp.SkipIf
		}
		imports[i] = m
	}
	v.SetDefault("imports", imports)

	v.SetDefault("style.enabled", d.Style.Enabled)
	v.SetDefault("style.command", d.Style.Command)
	v.SetDefault("style.passes", d.Style.Passes)

	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("balancer", d.Balancer)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("select_script", d.SelectScript)
	v.SetDefault("parallel", d.Parallel)
}

// Save writes the configuration as YAML to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// Validate checks the settings the rewriter cannot work without.
func (c *Config) Validate() error {
	switch {
	case len(c.Annotations.Primary) == 0:
		return &ConfigError{Field: "annotations.primary", Message: "at least one annotation is required"}
	case len(c.Annotations.Secondary) == 0:
		return &ConfigError{Field: "annotations.secondary", Message: "at least one annotation is required"}
	case c.Annotations.ContainerToken == "":
		return &ConfigError{Field: "annotations.container_token", Message: "must not be empty"}
	case c.Guard.Type == "":
		return &ConfigError{Field: "guard.type", Message: "must not be empty"}
	case c.Guard.Var == "":
		return &ConfigError{Field: "guard.var", Message: "must not be empty"}
	case c.Balancer != BalancerBraces && c.Balancer != BalancerTreeSitter:
		return &ConfigError{Field: "balancer", Message: fmt.Sprintf("unknown balancer %q", c.Balancer)}
	case c.Style.Passes < 0:
		return &ConfigError{Field: "style.passes", Message: "must not be negative"}
	case c.Parallel < 0:
		return &ConfigError{Field: "parallel", Message: "must not be negative"}
	}
	for i, imp := range c.Imports {
		if strings.TrimSpace(imp.Line) == "" {
			return &ConfigError{Field: fmt.Sprintf("imports[%d].line", i), Message: "must not be empty"}
		}
	}
	return nil
}

// Patterns compiles the annotation settings.
func (c *Config) Patterns() (*locate.Patterns, error) {
	return locate.NewPatterns(locate.PatternConfig{
		Primary:        c.Annotations.Primary,
		Secondary:      c.Annotations.Secondary,
		Fallback:       c.Annotations.Fallback,
		ContainerToken: c.Annotations.ContainerToken,
	})
}

// RewriteGuard returns the guard the synthesizer emits.
func (c *Config) RewriteGuard() rewrite.Guard {
	g := c.Guard
	return rewrite.Guard{
		Type:             g.Type,
		Var:              g.Var,
		Acquire:          g.Acquire,
		Release:          g.Release,
		Uncached:         g.Uncached,
		ReleaseFlag:      g.ReleaseFlag,
		CachedAnnotation: g.CachedAnnotation,
		SharedAnnotation: g.SharedAnnotation,
		SharedKey:        g.SharedKey,
	}
}

// ImportSet returns the imports the assembler injects.
func (c *Config) ImportSet() rewrite.ImportSet {
	set := make(rewrite.ImportSet, len(c.Imports))
	for i, imp := range c.Imports {
		set[i] = rewrite.ImportLine{Line: imp.Line, SkipIf: imp.SkipIf, SharedOnly: imp.SharedOnly}
	}
	return set
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
