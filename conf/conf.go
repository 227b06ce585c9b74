// Package conf reads the meshworld configuration file
package conf

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultPath is used if no other configuration file is specified
const DefaultPath = "config/meshworld.yml"

var Config map[interface{}]interface{}

// Load loads the configuration file at path
func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return Parse(data)
}

// Parse replaces the configuration with the YAML document in data
func Parse(data []byte) error {
	c := make(map[interface{}]interface{})
	if err := yaml.Unmarshal(data, &c); err != nil {
		return err
	}

	Config = c
	return nil
}

// Key returns a key in the configuration
// Nested keys are separated by colons, e.g. "transfer:chunk_size"
func Key(key string) interface{} {
	keys := strings.Split(key, ":")
	c := Config
	for i := 0; i < len(keys)-1; i++ {
		sub, ok := c[keys[i]].(map[interface{}]interface{})
		if !ok {
			return nil
		}
		c = sub
	}

	return c[keys[len(keys)-1]]
}

// String returns a string key or def if it isn't set or not a string
func String(key, def string) string {
	v, ok := Key(key).(string)
	if !ok {
		return def
	}
	return v
}

// Int returns an integer key or def if it isn't set or not an integer
func Int(key string, def int) int {
	v, ok := Key(key).(int)
	if !ok {
		return def
	}
	return v
}

// Bool returns a boolean key or def if it isn't set or not a boolean
func Bool(key string, def bool) bool {
	v, ok := Key(key).(bool)
	if !ok {
		return def
	}
	return v
}

// Seconds returns a key holding a number of seconds as a Duration
func Seconds(key string, def time.Duration) time.Duration {
	switch v := Key(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Strings returns a list of strings, skipping entries of other types
func Strings(key string) []string {
	l, ok := Key(key).([]interface{})
	if !ok {
		return nil
	}

	var r []string
	for _, v := range l {
		if s, ok := v.(string); ok {
			r = append(r, s)
		}
	}
	return r
}
