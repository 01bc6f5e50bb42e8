package models

import "strings"

// CommandType enumerates the chat commands pharmacists can send.
type CommandType string

const (
	CommandLowStock CommandType = "lowstock"
	CommandExpiring CommandType = "expiring"
	CommandStock    CommandType = "stock"
	CommandPatient  CommandType = "patient"
	CommandHelp     CommandType = "help"
	CommandUnknown  CommandType = "unknown"
)

// Command represents a parsed instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

var commandAliases = map[string]CommandType{
	"lowstock": CommandLowStock,
	"low":      CommandLowStock,
	"expiring": CommandExpiring,
	"expiry":   CommandExpiring,
	"stock":    CommandStock,
	"patient":  CommandPatient,
	"help":     CommandHelp,
}

// ParseCommand derives a Command from a free-form text message.
func ParseCommand(message string) Command {
	cmd := Command{Type: CommandUnknown, Raw: message}

	tokens := strings.Fields(strings.TrimSpace(message))
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	if t, ok := commandAliases[head]; ok {
		cmd.Type = t
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
