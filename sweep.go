package main

import (
	"github.com/caesium-cloud/sweep/cmd"
	"github.com/caesium-cloud/sweep/pkg/env"
	"github.com/caesium-cloud/sweep/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("sweep failure", "error", err)
	}
}
