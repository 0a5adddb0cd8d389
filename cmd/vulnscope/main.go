package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulnscope/vulnscope/pkg"
)

var (
	version = "0.0.1"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ac := pkg.AppConfig{
		Context: ctx,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	app := ac.NewApp(version)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}
