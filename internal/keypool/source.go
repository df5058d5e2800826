package keypool

import (
	"fmt"
	"os"
	"strings"
)

// Source lists the secret references a pool should be built from. The
// concrete source (env vars, secret manager, config file) is an external
// collaborator.
type Source interface {
	List() ([]string, error)
}

// EnvVarFor returns the environment variable holding the key list for a
// provider, e.g. RATEWATCH_SERPAPI_KEYS.
func EnvVarFor(provider string) string {
	return "RATEWATCH_" + strings.ToUpper(provider) + "_KEYS"
}

// EnvSource reads keys from environment variables: either a single
// comma/newline separated list (RATEWATCH_<PROVIDER>_KEYS) or numbered
// variables (RATEWATCH_<PROVIDER>_KEY_1, _2, ...).
type EnvSource struct {
	Provider string
}

func (s EnvSource) List() ([]string, error) {
	var out []string

	if raw := os.Getenv(EnvVarFor(s.Provider)); raw != "" {
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' }) {
			if key := strings.TrimSpace(part); key != "" {
				out = append(out, key)
			}
		}
	}

	prefix := "RATEWATCH_" + strings.ToUpper(s.Provider) + "_KEY_"
	for i := 1; ; i++ {
		raw := os.Getenv(fmt.Sprintf("%s%d", prefix, i))
		if raw == "" {
			break
		}
		if key := strings.TrimSpace(raw); key != "" {
			out = append(out, key)
		}
	}

	return out, nil
}

// EnvDebug reports which env vars were consulted and how many keys each
// contributed, for the admin reload endpoint. Secrets are not included.
func (s EnvSource) EnvDebug() map[string]int {
	debug := map[string]int{}

	listVar := EnvVarFor(s.Provider)
	if raw := os.Getenv(listVar); raw != "" {
		n := 0
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' }) {
			if strings.TrimSpace(part) != "" {
				n++
			}
		}
		debug[listVar] = n
	}

	prefix := "RATEWATCH_" + strings.ToUpper(s.Provider) + "_KEY_"
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if os.Getenv(name) == "" {
			break
		}
		debug[name] = 1
	}

	return debug
}

// StaticSource serves a fixed key list; used in tests.
type StaticSource []string

func (s StaticSource) List() ([]string, error) {
	return append([]string(nil), s...), nil
}
