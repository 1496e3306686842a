package rig

import (
	"strings"

	"github.com/hashicorp/go-version"
)

// minVerifiedHamlibVersion is the oldest rigctld release the ERP
// fallback in hamlib.Connection was verified against. An older backend
// is logged, not rejected: the codec's sticky downgrade already copes
// with a backend that rejects the '+' prefix outright.
var minVerifiedHamlibVersion = version.Must(version.NewVersion("3.0"))

// parseHamlibVersion extracts the version token from a get_info banner
// line such as "Hamlib version: 4.5.5" or a bare "4.5.5".
func parseHamlibVersion(banner string) (*version.Version, bool) {
	for _, tok := range strings.Fields(banner) {
		tok = strings.Trim(tok, ",;")
		if v, err := version.NewVersion(tok); err == nil {
			return v, true
		}
	}
	return nil, false
}

// Capabilities is the set of boolean feature flags and the mode list
// derived from a single dump_caps run. It is populated once per connect
// and cached until the connection drops.
type Capabilities struct {
	FreqGet bool
	FreqSet bool
	ModeGet bool
	ModeSet bool
	VFOGet  bool
	VFOSet  bool
	PTTGet  bool
	PTTSet  bool

	Modes []string
}

// Empty reports whether no capability has been observed, matching the
// snapshot invariant "connected ⇒ caps ≠ ∅".
func (c Capabilities) Empty() bool {
	return !c.FreqGet && !c.FreqSet && !c.ModeGet && !c.ModeSet &&
		!c.VFOGet && !c.VFOSet && !c.PTTGet && !c.PTTSet && len(c.Modes) == 0
}

// parseDumpCaps turns the raw line array from \dump_caps into
// Capabilities. Boolean flags follow Hamlib's convention: "Y" (settable
// directly) or "E" (settable via an extension function) both count as
// true; anything else is false. The "Mode list:" line is parsed as a
// deduplicated, whitespace-separated token list.
func parseDumpCaps(lines []string) Capabilities {
	var caps Capabilities
	seen := make(map[string]bool)

	assign := map[string]*bool{
		"Can set Frequency": &caps.FreqSet,
		"Can get Frequency": &caps.FreqGet,
		"Can set Mode":      &caps.ModeSet,
		"Can get Mode":      &caps.ModeGet,
		"Can set VFO":       &caps.VFOSet,
		"Can get VFO":       &caps.VFOGet,
		"Can set PTT":       &caps.PTTSet,
		"Can get PTT":       &caps.PTTGet,
	}

	for _, raw := range lines {
		s := strings.TrimSpace(raw)
		if strings.HasPrefix(s, "Mode list:") {
			rest := strings.TrimPrefix(s, "Mode list:")
			for _, tok := range strings.Fields(rest) {
				m := strings.Trim(tok, ",;:.")
				if m == "" || m == "None" || seen[m] {
					continue
				}
				seen[m] = true
				caps.Modes = append(caps.Modes, m)
			}
			continue
		}

		idx := strings.Index(s, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(s[:idx])
		val := strings.TrimSpace(s[idx+1:])

		if dst, ok := assign[key]; ok {
			*dst = parseBoolFlag(val)
		}
	}

	return caps
}

func parseBoolFlag(v string) bool {
	if v == "" {
		return false
	}
	switch strings.ToUpper(v[:1]) {
	case "Y", "E":
		return true
	default:
		return false
	}
}
