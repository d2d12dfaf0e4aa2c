package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/fedi"
	"github.com/smutt/fediscripts/pkg/registry"
)

var flags struct {
	outFile string
	verbose bool
}

func init() {
	flag.StringVar(&flags.outFile, "o", "", "consolidated file to write the merged registry to, defaults to stdout")
	flag.BoolVar(&flags.verbose, "v", false, "verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] FILE [FILE...]\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	zerolog.TimeFieldFormat = ""
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if flags.verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.With().Str("service", "fedimerge").Logger()

	if flag.NArg() == 0 {
		log.Fatal().Msg("no input files to merge")
	}

	if flags.outFile != "" {
		if err := registry.CheckWritable(flags.outFile); err != nil {
			log.Fatal().Err(err).Msg("unable to write output file")
		}
	}

	merged := make(map[string]*fedi.Instance, 0)
	for _, path := range flag.Args() {
		instances := registry.LoadFile(path)
		log.Info().Str("path", path).Int("instances", len(instances)).Msg("loaded")
		merged = registry.Merge(merged, instances)
	}
	log.Info().Int("instances", len(merged)).Msg("merged")

	if flags.outFile == "" {
		if err := registry.Save(os.Stdout, merged); err != nil {
			log.Fatal().Err(err).Msg("unable to write merged registry")
		}
		return
	}
	if err := registry.SaveFile(flags.outFile, merged); err != nil {
		log.Fatal().Err(err).Msg("unable to write merged registry")
	}
}
