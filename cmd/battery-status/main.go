package main

import "github.com/cptspacemanspiff/battery-status/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
