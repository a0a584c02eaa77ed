package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/mvc24/bibliopa/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config is the pipeline configuration. Values come from defaults, then the
// YAML file, then environment variables; command flags override last.
type Config struct {
	Workdir   string `yaml:"workdir" validate:"required"`
	TextDir   string `yaml:"text_dir"`
	PriceDir  string `yaml:"price_dir"`
	BatchSize int    `yaml:"batch_size" validate:"gte=1"`

	Resolver ResolverConfig `yaml:"resolver"`
	People   PeopleConfig   `yaml:"people"`
	Parser   ParserConfig   `yaml:"parser"`
	Database DatabaseConfig `yaml:"database"`
}

type ResolverConfig struct {
	ExactThreshold    int `yaml:"exact_threshold" validate:"gte=0,lte=100"`
	ProbableThreshold int `yaml:"probable_threshold" validate:"gte=0,ltefield=ExactThreshold"`
	Workers           int `yaml:"workers" validate:"gte=1"`
}

type PeopleConfig struct {
	BatchSize            int      `yaml:"batch_size" validate:"gte=1"`
	OrganisationKeywords []string `yaml:"organisation_keywords"`
}

type ParserConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=ollama openai gemini"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	Concurrency       int     `yaml:"concurrency" validate:"gte=1"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"gte=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Workdir:   "data",
		TextDir:   "data/original/keine preise",
		PriceDir:  "data/original/preise",
		BatchSize: 25,
		Resolver: ResolverConfig{
			ExactThreshold:    95,
			ProbableThreshold: 75,
			Workers:           1,
		},
		People: PeopleConfig{
			BatchSize: 75,
		},
		Parser: ParserConfig{
			Provider:          "ollama",
			Temperature:       0.1,
			Concurrency:       4,
			RequestsPerMinute: 60,
		},
		Database: DatabaseConfig{
			Path: "data/bibliopa.db",
		},
	}
}

// Load builds the configuration. An empty path skips the file; a named file
// that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Parser.Model == "" {
		cfg.Parser.Model = DefaultModel(cfg.Parser.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enums
func (c Config) Validate() error {
	return validation.New("yaml").Validate(c)
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	setString("BIBLIOPA_WORKDIR", &cfg.Workdir)
	setString("BIBLIOPA_TEXT_DIR", &cfg.TextDir)
	setString("BIBLIOPA_PRICE_DIR", &cfg.PriceDir)
	setString("BIBLIOPA_DB", &cfg.Database.Path)
	setString("CATALOGING_PROVIDER", &cfg.Parser.Provider)
	setString("BIBLIOPA_MODEL", &cfg.Parser.Model)

	if v := os.Getenv("BIBLIOPA_ORGANISATION_KEYWORDS"); v != "" {
		cfg.People.OrganisationKeywords = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.People.OrganisationKeywords = append(cfg.People.OrganisationKeywords, k)
			}
		}
	}

	for key, dst := range map[string]*int{
		"BIBLIOPA_BATCH_SIZE":         &cfg.BatchSize,
		"BIBLIOPA_EXACT_THRESHOLD":    &cfg.Resolver.ExactThreshold,
		"BIBLIOPA_PROBABLE_THRESHOLD": &cfg.Resolver.ProbableThreshold,
		"BIBLIOPA_RESOLVER_WORKERS":   &cfg.Resolver.Workers,
		"BIBLIOPA_PEOPLE_BATCH_SIZE":  &cfg.People.BatchSize,
		"BIBLIOPA_PARSER_CONCURRENCY": &cfg.Parser.Concurrency,
		"BIBLIOPA_REQUESTS_PER_MINUTE": &cfg.Parser.RequestsPerMinute,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// DefaultModel returns the model used for a provider when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-1.5-pro"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}
