// Package main is the entry point for the chomp application.
package main

import (
	"github.com/chomp-dev/chomp/cmd"
)

func main() {
	cmd.Execute()
}
