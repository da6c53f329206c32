package main

import "github.com/sw33tLie/ruleconv/cmd"

func main() {
	cmd.Execute()
}
