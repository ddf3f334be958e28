package main

import (
	"github.com/fredsys/fred/internal/command"
	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

func main() {
	cmd, err := command.NewRootCommand()
	if err != nil {
		log.Error(err)
		atexit.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		log.Error(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
