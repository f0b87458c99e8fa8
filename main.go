// Package main is the entry point for the idkeeper CLI application.
// It keeps a user's identity provider session alive on this machine.
package main

import (
	"idkeeper/cli/cmd"
)

// main is the entry point for the idkeeper CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
