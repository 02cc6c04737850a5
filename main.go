package main

import "github.com/beamline/emrattach/cmd"

func main() {
	cmd.Execute()
}
