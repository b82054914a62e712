package protocol

import (
	"strconv"
	"strings"
)

// Command builds a single outbound SAM command line. Unlike the bridge's
// reply grammar, commands the client sends never need quoting: every value
// the client supplies (session IDs, destinations, host:port pairs) is
// already safe to place unquoted on the wire.
type Command struct {
	Verb    string
	Action  string
	Options []string
}

// NewCommand starts building a command with the given verb and action.
func NewCommand(verb, action string) *Command {
	return &Command{Verb: verb, Action: action}
}

// WithOption appends a KEY=VALUE pair. Empty values are still emitted as
// KEY= since the bridge treats that the same as an absent key.
func (c *Command) WithOption(key, value string) *Command {
	c.Options = append(c.Options, key+"="+value)
	return c
}

// WithOptionIf appends the option only if value is non-empty, for optional
// parameters that should fall back to the bridge's own default when unset.
func (c *Command) WithOptionIf(key, value string) *Command {
	if value == "" {
		return c
	}
	return c.WithOption(key, value)
}

// String renders the command as a single line, without a trailing newline.
func (c *Command) String() string {
	parts := make([]string, 0, 2+len(c.Options))
	parts = append(parts, c.Verb, c.Action)
	parts = append(parts, c.Options...)
	return strings.Join(parts, " ")
}

// Bytes renders the command terminated with the newline the bridge expects.
func (c *Command) Bytes() []byte {
	return []byte(c.String() + "\n")
}

// Hello builds HELLO VERSION MIN=.. MAX=...
func Hello(min, max string) *Command {
	return NewCommand(VerbHello, ActionVersion).
		WithOption("MIN", min).
		WithOption("MAX", max)
}

// SessionCreate builds SESSION CREATE STYLE=STREAM ID=.. DESTINATION=...
// SIGNATURE_TYPE is appended only when destination is a caller-supplied key
// (not TRANSIENT) and a signature type was actually given; a TRANSIENT
// destination and its signature type are both conveyed by the private key
// the bridge hands back, so nothing further needs to be said about it here.
func SessionCreate(id, destination string, sigType int, extra map[string]string) *Command {
	cmd := NewCommand(VerbSession, ActionCreate).
		WithOption("STYLE", StyleStream).
		WithOption("ID", id).
		WithOption("DESTINATION", destination)
	if destination != DestinationTransient && sigType >= 0 {
		cmd.WithOption("SIGNATURE_TYPE", strconv.Itoa(sigType))
	}
	for k, v := range extra {
		cmd.WithOption(k, v)
	}
	return cmd
}

// StreamAccept builds STREAM ACCEPT ID=.. SILENT=<true|false>.
func StreamAccept(id string, silent bool) *Command {
	return NewCommand(VerbStream, ActionAccept).
		WithOption("ID", id).
		WithOption("SILENT", strconv.FormatBool(silent))
}

// StreamConnect builds STREAM CONNECT ID=.. DESTINATION=.. SILENT=<true|false>.
func StreamConnect(id, destination string, silent bool) *Command {
	return NewCommand(VerbStream, ActionConnect).
		WithOption("ID", id).
		WithOption("DESTINATION", destination).
		WithOption("SILENT", strconv.FormatBool(silent))
}

// DestGenerate builds DEST GENERATE SIGNATURE_TYPE=...
func DestGenerate(sigType int) *Command {
	return NewCommand(VerbDest, ActionGenerate).
		WithOption("SIGNATURE_TYPE", strconv.Itoa(sigType))
}

// NamingLookup builds NAMING LOOKUP NAME=...
func NamingLookup(name string) *Command {
	return NewCommand(VerbNaming, ActionLookup).WithOption("NAME", name)
}
