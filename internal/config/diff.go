package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const maskedValue = "********"

// sensitiveKeywords mark keys whose values never leave the process.
var sensitiveKeywords = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"credential",
}

// Change is one settings key whose value differs from the defaults.
type Change struct {
	Key     string
	Default string
	Value   string
}

// Diff lists every key of s that differs from Default(s.BaseDir), with
// sensitive values masked. Keys are sorted.
func Diff(s Settings) ([]Change, error) {
	current, err := Flatten(s)
	if err != nil {
		return nil, err
	}
	defaults, err := Flatten(Default(s.BaseDir))
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{}, len(current))
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range defaults {
		keys[k] = struct{}{}
	}

	changes := make([]Change, 0)
	for k := range keys {
		if current[k] == defaults[k] {
			continue
		}
		changes = append(changes, Change{Key: k, Default: defaults[k], Value: current[k]})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes, nil
}

// Flatten renders s as dotted keys ("databases.default.host") to display
// strings, masking sensitive values.
func Flatten(s Settings) (map[string]string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			flatten(joinKey(prefix, key), child, out)
		}
	case []any:
		if len(v) == 0 {
			out[prefix] = "[]"
			return
		}
		for i, child := range v {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		value := fmt.Sprint(v)
		if isSensitiveKey(prefix) && value != "" {
			value = maskedValue
		}
		out[prefix] = value
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func isSensitiveKey(key string) bool {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		key = key[idx+1:]
	}
	if strings.Contains(key, "[") {
		return false
	}
	key = strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// Mask returns a copy of s with every secret replaced, safe to log.
func Mask(s Settings) Settings {
	out := s.Clone()
	if out.SecretKey != "" {
		out.SecretKey = maskedValue
	}
	if out.Email.HostPassword != "" {
		out.Email.HostPassword = maskedValue
	}
	for alias, db := range out.Databases {
		if db.Password != "" {
			db.Password = maskedValue
		}
		out.Databases[alias] = db
	}
	return out
}
