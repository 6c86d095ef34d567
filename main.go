// The main package for the floorsync executable.
package main

import (
	"github.com/ntanasko/floorsync/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
