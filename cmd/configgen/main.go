package main

import (
	"flag"
	"log"

	"github.com/danmuck/rdgram/internal/config"
)

func main() {
	mode := flag.String("mode", "serve", "config mode: serve|send|recv|demo")
	output := flag.String("output", "config.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to -output)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = *output
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", cfg.Mode, path)
		return
	}

	if err := config.WriteTemplate(*output, config.Mode(*mode), *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *mode, *output)
}
