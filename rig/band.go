package rig

import (
	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/hamlib"
)

// checkBand implements the band policy check: allow_out_of_band bypasses
// the check entirely; otherwise f must fall within at least one enabled
// preset's [lower_hz, upper_hz] range. An empty preset set rejects every
// frequency unless allow_out_of_band is set.
func checkBand(cfg config.RigConfig, hz int) *hamlib.Error {
	if cfg.AllowOutOfBand {
		return nil
	}
	for _, p := range cfg.EnabledPresets() {
		if hz >= p.LowerHz && hz <= p.UpperHz {
			return nil
		}
	}
	return &hamlib.Error{Kind: hamlib.KindBand, Message: "Frequency out of configured band ranges"}
}
