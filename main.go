package main

import "github.com/jbloomlab/deconvolver-code/cmd"

func main() {
	cmd.Execute()
}
