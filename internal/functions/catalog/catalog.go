// Package catalog loads the function definitions offered to the model as tools.
// Definitions come from a YAML file when one is configured, otherwise from the
// embedded default catalog.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"gopkg.in/yaml.v3"
)

//go:embed functions.yaml
var defaultCatalog []byte

var functionNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type fileConfig struct {
	Functions []FunctionConfig `yaml:"functions"`
}

// FunctionConfig is one catalog entry as written in YAML.
type FunctionConfig struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Description string                 `yaml:"description"`
	Parameters  map[string]interface{} `yaml:"parameters"`
}

// Load reads the catalog from path, or from the first existing candidate path
// when path is empty. The embedded catalog is used when no file is found.
func Load(path string) ([]models.Function, error) {
	data := defaultCatalog
	source := "embedded"

	resolved, err := resolveCatalogPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		data, err = os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to read function catalog %q: %w", resolved, err)
		}
		source = resolved
	}

	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("function catalog %s: %w", source, err)
	}
	return defs, nil
}

// Default returns the embedded catalog.
func Default() []models.Function {
	defs, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded function catalog is invalid: %v", err))
	}
	return defs
}

// Parse decodes and validates catalog YAML. Entries are returned sorted by name.
func Parse(data []byte) ([]models.Function, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Functions))
	defs := make([]models.Function, 0, len(cfg.Functions))
	for _, fc := range cfg.Functions {
		def, err := normalizeConfig(fc)
		if err != nil {
			return nil, err
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate function %q", def.Name)
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	return defs, nil
}

func normalizeConfig(fc FunctionConfig) (models.Function, error) {
	name := strings.TrimSpace(strings.ToLower(fc.Name))
	if !functionNameRegexp.MatchString(name) {
		return models.Function{}, fmt.Errorf("invalid function name %q", fc.Name)
	}

	typ := models.FunctionType(strings.TrimSpace(strings.ToLower(fc.Type)))
	if typ != models.FunctionTypeAgent && typ != models.FunctionTypeTrigger {
		return models.Function{}, fmt.Errorf("function %s: type must be agent or trigger, got %q", name, fc.Type)
	}

	params := fc.Parameters
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	if t, _ := params["type"].(string); t != "object" {
		return models.Function{}, fmt.Errorf("function %s: parameters must be an object schema", name)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return models.Function{}, fmt.Errorf("function %s: encode parameters: %w", name, err)
	}

	return models.Function{
		Name:        name,
		Type:        typ,
		Description: strings.TrimSpace(fc.Description),
		Parameters:  raw,
	}, nil
}

func resolveCatalogPath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("NEXUS_FUNCTIONS_FILE"))
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/functions.yaml",
		"/etc/nexus/functions.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "nexus", "functions.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}
