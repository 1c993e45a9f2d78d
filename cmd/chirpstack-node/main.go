package main

import "github.com/brocaar/chirpstack-node/cmd/chirpstack-node/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
