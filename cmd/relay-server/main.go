package main

import "github.com/oshokin/sos-relay/cmd/relay-server/cmd"

func main() {
	cmd.Execute()
}
