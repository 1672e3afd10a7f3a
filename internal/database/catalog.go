package database

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed statements.yaml
var defaultStatements []byte

// paramRegex matches :paramName placeholders in catalog SQL.
var paramRegex = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// Catalog maps logical statement keys to parameterized SQL. Repositories only
// ever refer to statements by key; the query text lives in YAML.
type Catalog struct {
	statements map[string]string
}

type catalogFile struct {
	Statements map[string]string `yaml:"statements"`
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultStatements)
}

// LoadCatalog reads a catalog from path, or the embedded default when path
// is empty. Keys missing from the file fall back to the default so an
// override only needs to list the statements it changes.
func LoadCatalog(path string) (*Catalog, error) {
	base, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statement catalog %s: %w", path, err)
	}
	override, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parsing statement catalog %s: %w", path, err)
	}
	for key, query := range override.statements {
		base.statements[key] = query
	}
	return base, nil
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding statements: %w", err)
	}
	if len(file.Statements) == 0 {
		return nil, fmt.Errorf("statement catalog is empty")
	}
	statements := make(map[string]string, len(file.Statements))
	for key, query := range file.Statements {
		query = strings.TrimSpace(query)
		if query == "" {
			return nil, fmt.Errorf("statement %q has no SQL", key)
		}
		statements[key] = query
	}
	return &Catalog{statements: statements}, nil
}

// Keys returns the sorted statement keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.statements))
	for k := range c.statements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the positional SQL and argument list for a statement.
// Every :name occurrence becomes a ? with its own argument, so a parameter
// may appear more than once. Unknown keys and missing parameters are errors.
func (c *Catalog) Resolve(key string, params Params) (string, []any, error) {
	sqlTemplate, ok := c.statements[key]
	if !ok {
		return "", nil, fmt.Errorf("unknown statement %q", key)
	}

	var args []any
	var missing []string
	query := paramRegex.ReplaceAllStringFunc(sqlTemplate, func(match string) string {
		name := match[1:]
		value, exists := params[name]
		if !exists {
			missing = append(missing, name)
		}
		args = append(args, value)
		return "?"
	})

	if len(missing) > 0 {
		return sqlTemplate, nil, fmt.Errorf("statement %q missing parameters: %s", key, strings.Join(missing, ", "))
	}
	return query, args, nil
}
