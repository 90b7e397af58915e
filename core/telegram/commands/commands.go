// Package commands describes the slash commands advertised in the bot menu.
package commands

// Command is menu metadata for a slash command. Dispatch happens in the
// message pipeline, which parses commands from the text itself.
type Command struct {
	Description string
	AdminOnly   bool
	Hidden      bool
}
