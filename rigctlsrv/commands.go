package rigctlsrv

import (
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rcludwick/multirig/hamlib"
	"github.com/rcludwick/multirig/rig"
)

// dispatch parses one request line and returns the complete reply text,
// already terminated with "\n". It never panics on malformed input: an
// unparseable line is treated the same as an unknown command.
func (l *Listener) dispatch(line string) string {
	erp := false
	if len(line) > 0 && hamlib.IsERPPrefixByte(line[0]) {
		erp = true
		line = line[1:]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return formatUnknown()
	}

	cmd, ok := hamlib.NormalizeCommand(fields[0])
	if !ok {
		return formatUnknown()
	}
	args := fields[1:]

	switch cmd {
	case hamlib.CmdSetFreq, hamlib.CmdSetMode, hamlib.CmdSetVFO, hamlib.CmdSetPTT:
		return l.handleSet(erp, cmd, args)
	case hamlib.CmdGetFreq, hamlib.CmdGetMode, hamlib.CmdGetVFO, hamlib.CmdGetPTT:
		return l.handleGet(erp, cmd)
	case hamlib.CmdChkVFO:
		return l.handleChkVFO(erp)
	case hamlib.CmdDumpCaps:
		return l.handleDumpCaps(erp)
	case hamlib.CmdDumpState:
		return l.handleDumpState(erp)
	default:
		return formatUnknown()
	}
}

// handleSet fans a set command out to every enabled rig, serialized per
// rig but parallel across rigs, and aggregates the outcome into a single
// RPRT: 0 if every invocation succeeded, else the first negative code in
// rig-index order. When rigctl_to_main_enabled is false the command never
// reaches any rig.
func (l *Listener) handleSet(erp bool, cmd hamlib.Command, args []string) string {
	if !l.reg.RigctlToMainEnabled() {
		return formatSetReply(erp, cmd, -11)
	}

	clients := l.reg.EnabledClients()
	if len(clients) == 0 {
		return formatSetReply(erp, cmd, 0)
	}

	codes := make([]int, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			codes[i] = applySet(c, cmd, args)
			return nil
		})
	}
	g.Wait()

	for _, code := range codes {
		if code < 0 {
			return formatSetReply(erp, cmd, code)
		}
	}
	return formatSetReply(erp, cmd, 0)
}

// applySet issues one set command against one Client and returns the
// RPRT-shaped result: 0 on success, the Hamlib error code on a rig
// failure, -6 (I/O error) on any other failure (io, timeout, busy, band),
// or -1 (Invalid Parameter) when args themselves can't be parsed.
func applySet(c *rig.Client, cmd hamlib.Command, args []string) int {
	var err *hamlib.Error
	switch cmd {
	case hamlib.CmdSetFreq:
		if len(args) < 1 {
			return -1
		}
		hz, perr := strconv.Atoi(args[0])
		if perr != nil {
			return -1
		}
		err = c.SetFrequency(hz)
	case hamlib.CmdSetMode:
		if len(args) < 1 {
			return -1
		}
		pb := 0
		if len(args) > 1 {
			v, perr := strconv.Atoi(args[1])
			if perr != nil {
				return -1
			}
			pb = v
		}
		err = c.SetMode(args[0], pb)
	case hamlib.CmdSetVFO:
		if len(args) < 1 {
			return -1
		}
		err = c.SetVFO(args[0])
	case hamlib.CmdSetPTT:
		if len(args) < 1 {
			return -1
		}
		err = c.SetPTT(args[0] == "1")
	default:
		return -11
	}
	if err == nil {
		return 0
	}
	if err.Kind == hamlib.KindRig {
		return err.Code
	}
	return -6
}

// handleGet reads only the main rig's snapshot; a disconnected main rig
// answers -6 (I/O error).
func (l *Listener) handleGet(erp bool, cmd hamlib.Command) string {
	main, _, ok := l.reg.Main()
	if !ok {
		return formatSetReply(erp, cmd, -6)
	}
	snap := main.GetStatus()
	if !snap.Connected {
		return formatSetReply(erp, cmd, -6)
	}

	var lines []string
	switch cmd {
	case hamlib.CmdGetFreq:
		lines = []string{"Frequency: " + strconv.Itoa(snap.FrequencyHz)}
	case hamlib.CmdGetMode:
		lines = []string{"Mode: " + snap.Mode, "Passband: " + strconv.Itoa(snap.PassbandHz)}
	case hamlib.CmdGetVFO:
		lines = []string{"VFO: " + snap.VFO}
	case hamlib.CmdGetPTT:
		v := "0"
		if snap.PTT {
			v = "1"
		}
		lines = []string{"PTT: " + v}
	}
	return formatGetReply(erp, cmd, lines)
}

func (l *Listener) handleChkVFO(erp bool) string {
	main, _, ok := l.reg.Main()
	if !ok {
		return formatSetReply(erp, hamlib.CmdChkVFO, -6)
	}
	snap := main.GetStatus()
	if !snap.Connected {
		return formatSetReply(erp, hamlib.CmdChkVFO, -6)
	}
	val := "0"
	if snap.Caps.VFOGet && snap.Caps.VFOSet {
		val = "1"
	}
	return formatGetReply(erp, hamlib.CmdChkVFO, []string{val})
}

func (l *Listener) handleDumpCaps(erp bool) string {
	main, _, ok := l.reg.Main()
	if !ok {
		return formatSetReply(erp, hamlib.CmdDumpCaps, -6)
	}
	snap := main.GetStatus()
	if !snap.Connected {
		return formatSetReply(erp, hamlib.CmdDumpCaps, -6)
	}
	return formatGetReply(erp, hamlib.CmdDumpCaps, capsLines(snap.Caps, snap.Modes))
}

func (l *Listener) handleDumpState(erp bool) string {
	main, _, ok := l.reg.Main()
	if !ok {
		return formatSetReply(erp, hamlib.CmdDumpState, -6)
	}
	snap := main.GetStatus()
	if !snap.Connected {
		return formatSetReply(erp, hamlib.CmdDumpState, -6)
	}
	return formatGetReply(erp, hamlib.CmdDumpState, stateLines(snap))
}

// capsLines reconstructs a dump_caps-shaped line array from the already
// parsed Capabilities, the inverse of rig.parseDumpCaps. The listener
// never retains the raw dump_caps text, only the parsed flags, so a
// client asking the listener for dump_caps gets a synthesized reply
// rather than a byte-for-byte replay of what the main rig originally
// sent.
func capsLines(caps rig.Capabilities, modes []string) []string {
	yn := func(b bool) string {
		if b {
			return "Y"
		}
		return "N"
	}
	lines := []string{
		"Can set Frequency: " + yn(caps.FreqSet),
		"Can get Frequency: " + yn(caps.FreqGet),
		"Can set Mode: " + yn(caps.ModeSet),
		"Can get Mode: " + yn(caps.ModeGet),
		"Can set VFO: " + yn(caps.VFOSet),
		"Can get VFO: " + yn(caps.VFOGet),
		"Can set PTT: " + yn(caps.PTTSet),
		"Can get PTT: " + yn(caps.PTTGet),
	}
	if len(modes) > 0 {
		lines = append(lines, "Mode list: "+strings.Join(modes, " "))
	}
	return lines
}

// stateLines synthesizes a minimal dump_state reply from the main rig's
// current snapshot: enough for a client to learn the active VFO and mode
// set without the listener having retained the backend's original
// dump_state text.
func stateLines(snap rig.Snapshot) []string {
	vfoList := "VFOA VFOB"
	if !(snap.Caps.VFOGet && snap.Caps.VFOSet) {
		vfoList = "VFOA"
	}
	lines := []string{
		"VFO list: " + vfoList,
		"VFO: " + snap.VFO,
	}
	if len(snap.Modes) > 0 {
		lines = append(lines, "Mode list: "+strings.Join(snap.Modes, " "))
	}
	return lines
}

func formatGetReply(erp bool, cmd hamlib.Command, lines []string) string {
	if erp {
		out := make([]string, 0, len(lines)+2)
		out = append(out, string(cmd)+":")
		out = append(out, lines...)
		out = append(out, "RPRT 0")
		return strings.Join(out, "\n") + "\n"
	}
	return strings.Join(lines, "\n") + "\n"
}

func formatSetReply(erp bool, cmd hamlib.Command, rprt int) string {
	if erp {
		return string(cmd) + ":\nRPRT " + strconv.Itoa(rprt) + "\n"
	}
	return "RPRT " + strconv.Itoa(rprt) + "\n"
}

func formatUnknown() string {
	return "RPRT -11\n"
}
