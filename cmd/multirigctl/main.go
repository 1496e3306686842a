// Command multirigctl is an interactive debug client for a running
// multirigd's Rigctl Listener: it dials the listener's TCP port and lets
// an operator hand-type rigctl commands, the interactive analogue of
// pat's own REPL, speaking the rigctl wire protocol instead of a Winlink
// connect string.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/bndr/gotabulate"
)

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:4534", "Address of a running multirigd rigctl listener")
	pflag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleErr.Render(fmt.Sprintf("multirigctl: connect %s: %v", *addr, err)))
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{conn: conn, r: bufio.NewReader(conn)}
	fmt.Println(styleBold.Render("multirigctl") + styleDim.Render(" connected to "+*addr))
	fmt.Println(styleDim.Render("Type a rigctl command (e.g. \\get_freq, F 14200000), 'status' for a snapshot, or 'quit'."))

	line := liner.NewLiner()
	defer line.Close()

	for {
		input, err := line.Prompt("multirigctl> ")
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "q", "quit", "exit":
			return
		case "status":
			c.printStatus()
			continue
		}

		reply, err := c.send(input)
		if err != nil {
			fmt.Println(styleErr.Render(err.Error()))
			continue
		}
		printReply(reply)
	}
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

// send transmits one raw rigctl line and reads the reply up to and
// including its terminal RPRT line (or, for a default-protocol get
// command with no RPRT, until a read deadline 3 seconds after the send).
func (c *client) send(line string) ([]string, error) {
	c.conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	var lines []string
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.conn.SetReadDeadline(deadline)
		ln, err := c.r.ReadString('\n')
		ln = strings.TrimRight(ln, "\r\n")
		if ln != "" {
			lines = append(lines, ln)
		}
		if err != nil {
			if len(lines) > 0 {
				return lines, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		if strings.HasPrefix(ln, "RPRT") {
			return lines, nil
		}
	}
}

func printReply(lines []string) {
	for _, ln := range lines {
		if strings.HasPrefix(ln, "RPRT") {
			if strings.TrimSpace(ln) == "RPRT 0" {
				fmt.Println(styleOK.Render(ln))
			} else {
				fmt.Println(styleErr.Render(ln))
			}
			continue
		}
		fmt.Println(ln)
	}
}

// printStatus issues the four main-rig get commands plus chk_vfo and
// renders the replies as a small gotabulate table.
func (c *client) printStatus() {
	rows := [][]string{
		{"Frequency", valueOrErr(c, "\\get_freq")},
		{"Mode/Passband", valueOrErr(c, "\\get_mode")},
		{"VFO", valueOrErr(c, "\\get_vfo")},
		{"PTT", valueOrErr(c, "\\get_ptt")},
		{"Dual VFO", valueOrErr(c, "\\chk_vfo")},
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"Field", "Value"})
	t.SetAlign("left")
	fmt.Println(t.Render("simple"))
}

func valueOrErr(c *client, cmd string) string {
	lines, err := c.send(cmd)
	if err != nil {
		return styleErr.Render(err.Error())
	}
	var kept []string
	for _, ln := range lines {
		if !strings.HasPrefix(ln, "RPRT") && !strings.HasSuffix(ln, ":") {
			kept = append(kept, ln)
		}
	}
	if len(kept) == 0 {
		return styleDim.Render("n/a")
	}
	return strings.Join(kept, "; ")
}
