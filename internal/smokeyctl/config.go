// config.go holds .smokey config types and resolution (load, defaults merge).
package smokeyctl

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// localConfig holds optional values from .smokey/config.yaml (flags override).
type localConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// TokenFromEnv names an environment variable holding the token, so the
	// config file itself never carries credentials.
	TokenFromEnv string `yaml:"token_from_env"`
	Timeout      string `yaml:"timeout"`
}

func defaultConfig() localConfig {
	return localConfig{
		BaseURL: "http://127.0.0.1:8080",
		Timeout: "30s",
	}
}

// loadLocalConfig tries ./.smokey/config.yaml then ~/.smokey/config.yaml and
// fills unset fields from the defaults.
func loadLocalConfig() (localConfig, error) {
	cfg := localConfig{}
	cwd, err := os.Getwd()
	if err != nil {
		return cfg, err
	}
	try := []string{
		filepath.Join(cwd, ".smokey", "config.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		try = append(try, filepath.Join(home, ".smokey", "config.yaml"))
	}
	for _, p := range try {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", p, err)
		}
		break
	}
	if err := mergo.Merge(&cfg, defaultConfig()); err != nil {
		return cfg, err
	}
	if cfg.Token == "" && cfg.TokenFromEnv != "" {
		cfg.Token = os.Getenv(cfg.TokenFromEnv)
	}
	return cfg, nil
}
