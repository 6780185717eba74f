package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/hamed0406/linkmonitor/internal/config"
)

func main() {
	once := flag.Bool("once", false, "probe every target once, persist the result and exit")
	flag.Parse()

	cfg := config.FromEnv()
	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := runOnce(ctx, cfg, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "linkmonitor:", err)
			os.Exit(1)
		}
		return
	}
	fx.New(serve(cfg), fxLogger).Run()
}
