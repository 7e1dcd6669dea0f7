package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at a YAML config file.
const ConfigFileEnv = "CONFIG_FILE"

// LoadYAMLFile reads a YAML file and exports its keys as environment
// variables. Nested mappings are joined with underscores, so
//
//	embedding_endpoint:
//	  model: text-embedding-3-small
//
// becomes EMBEDDING_ENDPOINT_MODEL. Variables that are already set are left
// alone, the same way godotenv.Load treats a .env file.
func LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	vars, err := ParseYAML(data)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, vars[k]); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// ParseYAML flattens a YAML document into environment variable assignments.
func ParseYAML(data []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := flatten("", root, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch value := v.(type) {
		case map[string]any:
			if err := flatten(key, value, out); err != nil {
				return err
			}
		case []any:
			items := make([]string, len(value))
			for i, item := range value {
				items[i] = fmt.Sprint(item)
			}
			out[key] = strings.Join(items, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(value)
		}
	}
	return nil
}
