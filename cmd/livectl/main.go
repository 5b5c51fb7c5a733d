// Package main is livectl, a command-line client for the live control API.
package main

import "github.com/aura-live/backend/internal/cli"

func main() {
	cli.Execute()
}
