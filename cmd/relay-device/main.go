package main

import "github.com/oshokin/sos-relay/cmd/relay-device/cmd"

func main() {
	cmd.Execute()
}
