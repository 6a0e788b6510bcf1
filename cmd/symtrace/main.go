package main

import "symtrace/cmd/symtrace/cmd"

func main() {
	cmd.Execute()
}
