package main

import (
	"os"

	"github.com/Priya8975/capi-relay/cmd/capi-relay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
