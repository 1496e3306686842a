package config

import "github.com/kelseyhightower/envconfig"

// EnvOverlay mirrors the handful of settings the original implementation
// let an operator override via environment variables without touching
// the on-disk configuration (MULTIRIG_RIGCTL_HOST / MULTIRIG_RIGCTL_PORT).
// It is applied on top of a loaded AppConfig; unset fields are ignored.
type EnvOverlay struct {
	RigctlHost string `envconfig:"RIGCTL_HOST"`
	RigctlPort int    `envconfig:"RIGCTL_PORT"`
}

// ApplyEnv reads MULTIRIG_-prefixed environment variables and overlays
// any that are set onto cfg, returning the result. cfg is not mutated.
func ApplyEnv(cfg AppConfig) (AppConfig, error) {
	var overlay EnvOverlay
	if err := envconfig.Process("multirig", &overlay); err != nil {
		return cfg, err
	}
	if overlay.RigctlHost != "" {
		cfg.RigctlListenHost = overlay.RigctlHost
	}
	if overlay.RigctlPort != 0 {
		cfg.RigctlListenPort = overlay.RigctlPort
	}
	return cfg, nil
}
