// Package env reads configuration values from the process environment, an
// optional .env file and an optional config file, in that order of priority.
package env

import (
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var loadOnce sync.Once

// Load reads .env (if present) and the optional config file. Safe to call
// more than once; only the first call has an effect.
func Load(configFile string) error {
	var err error
	loadOnce.Do(func() {
		_ = godotenv.Load()

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

		if configFile != "" {
			viper.SetConfigFile(configFile)
			err = viper.ReadInConfig()
		}
	})
	return err
}

func lookup(key string) (string, bool) {
	viper.AutomaticEnv()
	if !viper.IsSet(key) {
		return "", false
	}
	v := strings.TrimSpace(viper.GetString(key))
	return v, v != ""
}

func GetString(key, defaultValue string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return defaultValue
}

func GetInt(key string, defaultValue int) int {
	if _, ok := lookup(key); ok {
		return viper.GetInt(key)
	}
	return defaultValue
}

func GetInt64(key string, defaultValue int64) int64 {
	if _, ok := lookup(key); ok {
		return viper.GetInt64(key)
	}
	return defaultValue
}

func GetFloat(key string, defaultValue float64) float64 {
	if _, ok := lookup(key); ok {
		return viper.GetFloat64(key)
	}
	return defaultValue
}

func GetBool(key string, defaultValue bool) bool {
	if _, ok := lookup(key); ok {
		return viper.GetBool(key)
	}
	return defaultValue
}

// GetDuration accepts Go duration strings ("30s", "2m").
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetStringSlice splits a comma separated value.
func GetStringSlice(key string, defaultValue []string) []string {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
