package config

import (
	"os"
	"testing"
)

func TestApplyEnvOverlay(t *testing.T) {
	os.Setenv("MULTIRIG_RIGCTL_HOST", "10.0.0.5")
	os.Setenv("MULTIRIG_RIGCTL_PORT", "9999")
	defer os.Unsetenv("MULTIRIG_RIGCTL_HOST")
	defer os.Unsetenv("MULTIRIG_RIGCTL_PORT")

	cfg := Default()
	got, err := ApplyEnv(cfg)
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got.RigctlListenHost != "10.0.0.5" {
		t.Errorf("RigctlListenHost = %q, want 10.0.0.5", got.RigctlListenHost)
	}
	if got.RigctlListenPort != 9999 {
		t.Errorf("RigctlListenPort = %d, want 9999", got.RigctlListenPort)
	}
	if cfg.RigctlListenHost == got.RigctlListenHost {
		t.Error("ApplyEnv should not mutate its input")
	}
}

func TestApplyEnvNoOverride(t *testing.T) {
	os.Unsetenv("MULTIRIG_RIGCTL_HOST")
	os.Unsetenv("MULTIRIG_RIGCTL_PORT")

	cfg := Default()
	got, err := ApplyEnv(cfg)
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got.RigctlListenHost != cfg.RigctlListenHost || got.RigctlListenPort != cfg.RigctlListenPort {
		t.Error("ApplyEnv should leave values unchanged when env vars are unset")
	}
}
