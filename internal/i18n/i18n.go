// Package i18n holds the translated strings used in command replies.
//
// Languages are flat key/value tables built from YAML (or JSON) documents;
// nested mappings are flattened with dots, so {ping: {pong: "..."}} is
// looked up as "ping.pong". The English and French tables are embedded and
// registered as "en_default" and "fr_default"; files from the locales
// directory are registered under their base name and take precedence.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ErrLanguageAlreadyDefined is returned by AddLanguage when the name is
// taken and force is false.
var ErrLanguageAlreadyDefined = errors.New("i18n: language already defined")

const defaultSuffix = "_default"

//go:embed locales/*.yaml
var embedded embed.FS

// Catalog is a concurrency-safe set of languages.
type Catalog struct {
	mu       sync.RWMutex
	langs    map[string]map[string]string
	fallback string
}

// New returns an empty catalog falling back to fallbackLocale.
func New(fallbackLocale string) *Catalog {
	if fallbackLocale == "" {
		fallbackLocale = "fr"
	}
	return &Catalog{
		langs:    make(map[string]map[string]string),
		fallback: fallbackLocale,
	}
}

// NewDefault returns a catalog preloaded with the embedded languages.
func NewDefault(fallbackLocale string) (*Catalog, error) {
	c := New(fallbackLocale)
	entries, err := embedded.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read embedded locales: %w", err)
	}
	for _, e := range entries {
		content, err := embedded.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) + defaultSuffix
		if err := c.AddLanguage(name, content, true); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddLanguage parses content and registers it under name. An existing
// language is only replaced when force is true.
func (c *Catalog) AddLanguage(name string, content []byte, force bool) error {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", name, err)
	}
	table := make(map[string]string)
	flatten("", doc, table)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.langs[name]; exists && !force {
		return fmt.Errorf("%w: %s", ErrLanguageAlreadyDefined, name)
	}
	c.langs[name] = table
	return nil
}

// LoadDir registers every .yaml, .yml and .json file of dir without
// forcing. It returns the names loaded and the per-file failures joined.
func (c *Catalog) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}
	var loaded []string
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if err := c.AddLanguage(name, content, false); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, name)
	}
	return loaded, errors.Join(errs...)
}

// Languages returns the registered language names in sorted order.
func (c *Catalog) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := maps.Keys(c.langs)
	slices.Sort(names)
	return names
}

// T translates key for locale and formats it with args. Lookup order is
// locale, its embedded default, the fallback locale, its embedded default,
// and finally the key itself.
func (c *Catalog) T(locale, key string, args ...any) string {
	c.mu.RLock()
	msg, ok := c.lookup(locale, key)
	if !ok {
		msg, ok = c.lookup(c.fallback, key)
	}
	c.mu.RUnlock()

	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// lookup must be called with mu held.
func (c *Catalog) lookup(locale, key string) (string, bool) {
	for _, name := range []string{locale, locale + defaultSuffix} {
		if table, ok := c.langs[name]; ok {
			if msg, ok := table[key]; ok {
				return msg, true
			}
		}
	}
	return "", false
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(join(prefix, k), child, out)
		}
	case []any:
		for i, child := range v {
			flatten(join(prefix, fmt.Sprint(i)), child, out)
		}
	case nil:
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(v)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
