// The main package for the mapleads executable.
package main

import (
	"github.com/askern/mapleads/cmd"
)

func main() {
	cmd.Execute()
}
