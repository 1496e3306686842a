package hamlib

import (
	"strconv"
	"strings"
)

// Response is a fully decoded reply to a single submitted command: the
// payload lines (command echo and RPRT line stripped), a Values map for
// the recognized "Key: Value" records, and the numeric RPRT code.
type Response struct {
	Command Command
	RPRT    int
	Lines   []string
	Values  map[string]string
}

// parseRPRTLine recognizes a terminal "RPRT <int>" line. It never
// inspects any other text on the line.
func parseRPRTLine(line string) (code int, ok bool) {
	if !strings.HasPrefix(line, "RPRT ") && line != "RPRT" {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseKV recognizes the "Key: Value" records rigctld emits for
// get_freq, get_mode, get_vfo, get_ptt and similar single-value queries.
func parseKV(lines []string) map[string]string {
	out := make(map[string]string, len(lines))
	for _, ln := range lines {
		i := strings.Index(ln, ":")
		if i < 0 {
			continue
		}
		k := strings.TrimSpace(ln[:i])
		v := strings.TrimSpace(ln[i+1:])
		out[k] = v
	}
	return out
}

// stripEcho removes the leading "<command>:" echo line that the ERP form
// prepends to every reply.
func stripEcho(cmd Command, lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	if strings.TrimSpace(lines[0]) == string(cmd)+":" {
		return lines[1:]
	}
	return lines
}

// decodeERP builds a Response from the full set of lines read for one
// ERP-form command, including the terminal RPRT line. It fails with
// KindProtocol if no RPRT line is present.
func decodeERP(cmd Command, lines []string) (*Response, *Error) {
	if len(lines) == 0 {
		return nil, newProtocolError(string(cmd), "empty response, missing RPRT", lines)
	}
	last := lines[len(lines)-1]
	code, ok := parseRPRTLine(last)
	if !ok {
		return nil, newProtocolError(string(cmd), "missing RPRT line", lines)
	}
	payload := stripEcho(cmd, lines[:len(lines)-1])
	if code < 0 {
		return nil, newRigError(string(cmd), code, payload)
	}
	return &Response{Command: cmd, RPRT: code, Lines: payload, Values: parseKV(payload)}, nil
}

// decodeDefault builds a Response from lines read under the default
// (non-ERP) protocol, where the peer never echoes the command name and
// an RPRT line is only emitted for set-style commands or on error.
// If a trailing RPRT line is present it is consumed and validated;
// otherwise every line collected is treated as payload and success
// (RPRT 0) is assumed, matching real rigctld behavior for get-style
// commands in default mode.
func decodeDefault(cmd Command, lines []string) (*Response, *Error) {
	if len(lines) == 0 {
		return &Response{Command: cmd, RPRT: 0, Values: map[string]string{}}, nil
	}
	last := lines[len(lines)-1]
	if code, ok := parseRPRTLine(last); ok {
		payload := lines[:len(lines)-1]
		if code < 0 {
			return nil, newRigError(string(cmd), code, payload)
		}
		return &Response{Command: cmd, RPRT: code, Lines: payload, Values: parseKV(payload)}, nil
	}
	return &Response{Command: cmd, RPRT: 0, Lines: lines, Values: parseKV(lines)}, nil
}

// expectedValueLines reports how many bare value lines the default
// protocol returns for a get-style command, used by the connection to
// know when to stop reading once ERP support has been downgraded.
func expectedValueLines(cmd Command) (int, bool) {
	n, ok := valueLineCount[cmd]
	return n, ok
}
