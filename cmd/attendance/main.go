package main

import (
	"context"
	"log"

	"github.com/MSU-Students/q-attendance/internal/app"
	"github.com/MSU-Students/q-attendance/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	a.Run(ctx)

}
