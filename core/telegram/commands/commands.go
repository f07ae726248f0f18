// Package commands describes slash commands published to the bot menu.
package commands

// Command represents a bot command with its description and metadata.
type Command struct {
	Description string
	// Hidden commands are handled but not listed in the command menu.
	Hidden  bool
	Aliases []string
}
