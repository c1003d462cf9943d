package config

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// document encodes cfg into a YAML node tree, keyed exactly like the
// config file.
func document(cfg *Config) (*yaml.Node, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return &doc, nil
}

// lookup walks a dot-notation path of YAML keys down from node.
func lookup(node *yaml.Node, path string) (*yaml.Node, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	for _, key := range strings.Split(path, ".") {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("cannot traverse into %s: not a section", key)
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("key not found: %s", path)
		}
		node = next
	}
	return node, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "datafeed.retry.maxAttempts").
// A section path returns the whole section as a map.
func GetByPath(cfg *Config, path string) (any, error) {
	doc, err := document(cfg)
	if err != nil {
		return nil, err
	}
	node, err := lookup(doc, path)
	if err != nil {
		return nil, err
	}
	var val any
	if err := node.Decode(&val); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return val, nil
}

// SetByPath sets a single config value by dot-notation path. The value is
// parsed the way it would be in the config file, so "true" sets a bool and
// "4" an int. cfg is left untouched when the value does not fit the field.
func SetByPath(cfg *Config, path, value string) error {
	doc, err := document(cfg)
	if err != nil {
		return err
	}
	node, err := lookup(doc, path)
	if err != nil {
		return err
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%s is a section, not a value", path)
	}

	node.Value = value
	node.Tag = "" // resolve the new value's type again
	node.Style = 0

	updated := *cfg
	if err := doc.Decode(&updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = updated
	return nil
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	if u, err := url.Parse(c.AMQP.URL); err == nil && u.User != nil {
		if pw, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), maskString(pw))
			c.AMQP.URL = u.String()
		}
	}
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	doc, err := document(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flatten("", doc, result)
	return result
}

func flatten(prefix string, node *yaml.Node, result map[string]any) {
	if node.Kind != yaml.MappingNode {
		var val any
		if err := node.Decode(&val); err == nil {
			result[prefix] = val
		}
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		if prefix != "" {
			path = prefix + "." + path
		}
		flatten(path, node.Content[i+1], result)
	}
}
