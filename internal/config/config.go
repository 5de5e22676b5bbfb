package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"workinbox/internal/domain"
)

// Config models inbox.yml.
type Config struct {
	Weights    Weights    `yaml:"weights" json:"weights"`
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	Windows    Windows    `yaml:"windows" json:"windows"`
	Statuses   Statuses   `yaml:"statuses" json:"statuses"`
	Log        Log        `yaml:"log" json:"log"`
	Server     Server     `yaml:"server" json:"server"`
}

type Weights struct {
	Category map[domain.Category]float64  `yaml:"category" json:"category"`
	Risk     map[domain.RiskLevel]float64 `yaml:"risk" json:"risk"`
	Monetary struct {
		Factor float64 `yaml:"factor" json:"factor"`
		Cap    float64 `yaml:"cap" json:"cap"`
	} `yaml:"monetary" json:"monetary"`
	Urgency struct {
		OverdueBase    float64 `yaml:"overdue_base" json:"overdue_base"`
		OverduePerDay  float64 `yaml:"overdue_per_day" json:"overdue_per_day"`
		OverdueCap     float64 `yaml:"overdue_cap" json:"overdue_cap"`
		UpcomingBase   float64 `yaml:"upcoming_base" json:"upcoming_base"`
		UpcomingPerDay float64 `yaml:"upcoming_per_day" json:"upcoming_per_day"`
	} `yaml:"urgency" json:"urgency"`
	Evidence struct {
		PerItem float64 `yaml:"per_item" json:"per_item"`
		Cap     float64 `yaml:"cap" json:"cap"`
	} `yaml:"evidence" json:"evidence"`
}

type Thresholds struct {
	InvoiceHigh       float64 `yaml:"invoice_high" json:"invoice_high"`
	AmendmentHigh     float64 `yaml:"amendment_high" json:"amendment_high"`
	AmendmentCritical float64 `yaml:"amendment_critical" json:"amendment_critical"`
}

type Windows struct {
	ContractSignatureDays int `yaml:"contract_signature_days" json:"contract_signature_days"`
}

// Statuses extends the built-in status allow-lists of the adapters.
type Statuses struct {
	InvoiceAwaiting   []string `yaml:"invoice_awaiting" json:"invoice_awaiting,omitempty"`
	AmendmentAwaiting []string `yaml:"amendment_awaiting" json:"amendment_awaiting,omitempty"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type Server struct {
	Addr     string `yaml:"addr" json:"addr"`
	BasePath string `yaml:"base_path" json:"base_path"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wi config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "inbox.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections
// missing from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures weights are complete, non-negative and keep the
// category and risk rankings: Contract and Blockage above every other
// category, Amendment below every other, Critical > High > Medium > Low.
func (c *Config) Validate() error {
	for _, cat := range domain.Categories {
		w, ok := c.Weights.Category[cat]
		if !ok {
			return fmt.Errorf("weights.category.%s is required", cat)
		}
		if w < 0 {
			return fmt.Errorf("weights.category.%s must not be negative", cat)
		}
	}
	for name := range c.Weights.Category {
		if parsed, ok := domain.ParseCategory(string(name)); !ok || parsed != name {
			return fmt.Errorf("weights.category has unknown category %s", name)
		}
	}
	top := []domain.Category{domain.CategoryContract, domain.CategoryBlockage}
	for _, cat := range domain.Categories {
		if cat == domain.CategoryContract || cat == domain.CategoryBlockage {
			continue
		}
		for _, high := range top {
			if c.Weights.Category[high] <= c.Weights.Category[cat] {
				return fmt.Errorf("weights.category.%s must exceed %s", high, cat)
			}
		}
		if cat != domain.CategoryAmendment && c.Weights.Category[domain.CategoryAmendment] >= c.Weights.Category[cat] {
			return fmt.Errorf("weights.category.Amendment must be below %s", cat)
		}
	}
	for i, lvl := range domain.RiskLevels {
		w, ok := c.Weights.Risk[lvl]
		if !ok {
			return fmt.Errorf("weights.risk.%s is required", lvl)
		}
		if w < 0 {
			return fmt.Errorf("weights.risk.%s must not be negative", lvl)
		}
		if i > 0 && w <= c.Weights.Risk[domain.RiskLevels[i-1]] {
			return fmt.Errorf("weights.risk.%s must exceed %s", lvl, domain.RiskLevels[i-1])
		}
	}
	for name := range c.Weights.Risk {
		if name.Rank() < 0 {
			return fmt.Errorf("weights.risk has unknown level %s", name)
		}
	}
	m := c.Weights.Monetary
	u := c.Weights.Urgency
	e := c.Weights.Evidence
	for field, v := range map[string]float64{
		"weights.monetary.factor":          m.Factor,
		"weights.monetary.cap":             m.Cap,
		"weights.urgency.overdue_base":     u.OverdueBase,
		"weights.urgency.overdue_per_day":  u.OverduePerDay,
		"weights.urgency.overdue_cap":      u.OverdueCap,
		"weights.urgency.upcoming_base":    u.UpcomingBase,
		"weights.urgency.upcoming_per_day": u.UpcomingPerDay,
		"weights.evidence.per_item":        e.PerItem,
		"weights.evidence.cap":             e.Cap,
		"thresholds.invoice_high":          c.Thresholds.InvoiceHigh,
		"thresholds.amendment_high":        c.Thresholds.AmendmentHigh,
		"thresholds.amendment_critical":    c.Thresholds.AmendmentCritical,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", field)
		}
	}
	if u.OverdueCap < u.OverdueBase {
		return fmt.Errorf("weights.urgency.overdue_cap must be at least overdue_base")
	}
	if c.Thresholds.AmendmentCritical <= c.Thresholds.AmendmentHigh {
		return fmt.Errorf("thresholds.amendment_critical must exceed amendment_high")
	}
	if c.Windows.ContractSignatureDays < 0 {
		return fmt.Errorf("windows.contract_signature_days must not be negative")
	}
	for _, s := range append(append([]string{}, c.Statuses.InvoiceAwaiting...), c.Statuses.AmendmentAwaiting...) {
		if s == "" {
			return fmt.Errorf("statuses contains an empty entry")
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

const defaultTemplate = `weights:
  category:
    PurchaseOrder: 18
    Invoice: 22
    Amendment: 16
    Contract: 30
    Blockage: 28
    Litigation: 25
  risk:
    Low: 8
    Medium: 18
    High: 30
    Critical: 45
  monetary:
    factor: 6
    cap: 30
  urgency:
    overdue_base: 25
    overdue_per_day: 2
    overdue_cap: 45
    upcoming_base: 20
    upcoming_per_day: 2
  evidence:
    per_item: 2
    cap: 12

thresholds:
  invoice_high: 5000000
  amendment_high: 3000000
  amendment_critical: 10000000

windows:
  contract_signature_days: 7

statuses:
  invoice_awaiting: []
  amendment_awaiting: []

log:
  level: info
  format: text

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
