package main

import "github.com/tanq16/vidown/cmd"

func main() {
	cmd.Execute()
}
