package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/fedi"
	"github.com/smutt/fediscripts/pkg/dnsclient"
	"github.com/smutt/fediscripts/pkg/executor"
	"github.com/smutt/fediscripts/pkg/fetcher"
	"github.com/smutt/fediscripts/pkg/pinger"
	"github.com/smutt/fediscripts/pkg/registry"
	"github.com/smutt/fediscripts/pkg/rlimit"
	"github.com/smutt/fediscripts/services/probe"
)

var flags struct {
	dns       bool
	dnssec    bool
	ping4     bool
	ping6     bool
	https     bool
	nodeInfo  bool
	nodeInfo2 bool
	all       bool

	inFile  string
	outFile string
	minHits int

	cats   string
	sums   string
	totals bool
	asJSON bool

	verbose bool
	debug   bool
}

func init() {
	flag.BoolVar(&flags.dns, "r", false, "test if instances resolve in DNS")
	flag.BoolVar(&flags.dnssec, "d", false, "test if instances have DNSSEC records")
	flag.BoolVar(&flags.ping4, "4", false, "test if instances answer ping over ipv4")
	flag.BoolVar(&flags.ping6, "6", false, "test if instances answer ping over ipv6")
	flag.BoolVar(&flags.https, "e", false, "test if instances answer https on common urls")
	flag.BoolVar(&flags.nodeInfo, "n", false, "test if instances serve a nodeinfo document")
	flag.BoolVar(&flags.nodeInfo2, "n2", false, "test if instances serve an x-nodeinfo2 document")
	flag.BoolVar(&flags.all, "a", false, "run every test")

	flag.StringVar(&flags.inFile, "i", "", "consolidated file to read instances from")
	flag.StringVar(&flags.outFile, "o", "", "consolidated file to write surviving instances to")
	flag.IntVar(&flags.minHits, "m", 0, "only test instances with at least this many hits, requires -i")

	flag.StringVar(&flags.cats, "c", "", "categorize surviving instances, comma separated methods: "+strings.Join(probe.CatMethods, ","))
	flag.StringVar(&flags.sums, "s", "", "sum nodeinfo attributes across surviving instances, comma separated methods: "+strings.Join(probe.SumMethods, ","))
	flag.BoolVar(&flags.totals, "t", false, "suppress per instance output, only print categories and sums")
	flag.BoolVar(&flags.asJSON, "j", false, "print results as json")

	flag.BoolVar(&flags.verbose, "v", false, "verbose logging")
	flag.BoolVar(&flags.debug, "g", false, "debug logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [INSTANCE]\n", os.Args[0])
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
	if flags.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.With().Str("service", "fediprobe").Logger()

	stages := probe.Stages{
		DNS:       flags.dns,
		DNSSEC:    flags.dnssec,
		Ping4:     flags.ping4,
		Ping6:     flags.ping6,
		HTTPS:     flags.https,
		NodeInfo:  flags.nodeInfo,
		NodeInfo2: flags.nodeInfo2,
		All:       flags.all,
	}
	catMethods := methodList(flags.cats, probe.CatMethods, "categorization")
	sumMethods := methodList(flags.sums, probe.SumMethods, "sum")

	validate(stages, catMethods, sumMethods)

	instances := loadInstances()
	if len(instances) == 0 {
		log.Fatal().Err(fedi.ErrNoInstances).Msg("nothing to test")
	}

	if flags.outFile != "" {
		if err := registry.CheckWritable(flags.outFile); err != nil {
			log.Fatal().Err(err).Msg("unable to write output file")
		}
	}

	if nofile, err := rlimit.RaiseOpenFiles(); err != nil {
		log.Warn().Err(err).Msg("unable to raise open file limit")
	} else {
		log.Info().Uint64("nofile", nofile).Msg("raised open file limit")
	}

	pl := buildPipeline(stages)
	ctx := context.Background()

	surviving, err := pl.Run(ctx, stages, instances)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to run tests")
	}

	printInstances(surviving)
	printCategories(ctx, pl, catMethods, surviving)
	printSums(ctx, pl, sumMethods, surviving)
}

// validate fails on contradictory arguments before any network activity.
func validate(stages probe.Stages, catMethods, sumMethods []string) {
	if flag.NArg() > 1 {
		log.Fatal().Msg("only one instance may be passed on the command line")
	}
	if flag.NArg() == 1 && flags.inFile != "" {
		log.Fatal().Msg("an instance argument and -i are mutually exclusive")
	}
	if flag.NArg() == 0 && flags.inFile == "" {
		log.Fatal().Msg("no instances to test, pass an instance or -i")
	}
	if flags.minHits > 0 && flags.inFile == "" {
		log.Fatal().Msg("-m requires -i")
	}
	if flags.outFile != "" && (len(catMethods) > 0 || len(sumMethods) > 0) {
		log.Fatal().Msg("-o is mutually exclusive with -c and -s")
	}
	if flags.totals && len(catMethods) == 0 && len(sumMethods) == 0 {
		log.Fatal().Msg("-t requires -c or -s")
	}
	if !stages.Any() && len(catMethods) == 0 && len(sumMethods) == 0 {
		log.Fatal().Msg("no tests requested")
	}
}

// methodList splits a comma separated method list and fails on names not in
// known.
func methodList(raw string, known []string, kind string) []string {
	if raw == "" {
		return nil
	}

	methods := make([]string, 0)
	for _, method := range strings.Split(raw, ",") {
		method = strings.TrimSpace(method)
		if method == "" {
			continue
		}
		found := false
		for _, k := range known {
			if method == k {
				found = true
				break
			}
		}
		if !found {
			log.Fatal().Str("method", method).Msgf("unknown %s method, known: %s", kind, strings.Join(known, ","))
		}
		methods = append(methods, method)
	}
	return methods
}

func loadInstances() []*fedi.Instance {
	if flag.NArg() == 1 {
		ins, err := fedi.NewInstance(flag.Arg(0), time.Now().Unix())
		if err != nil {
			log.Fatal().Err(err).Str("domain", flag.Arg(0)).Msg("invalid instance")
		}
		return []*fedi.Instance{ins}
	}

	loaded := registry.LoadFile(flags.inFile)
	if flags.minHits > 0 {
		loaded = registry.FilterMinHits(loaded, flags.minHits)
	}
	return registry.Sorted(loaded)
}

func buildPipeline(stages probe.Stages) *probe.Pipeline {
	servers, err := dnsclient.SystemServers()
	if err != nil {
		log.Fatal().Err(err).Msg("unable to read system resolvers")
	}
	dc := dnsclient.New(servers, 3)
	fc := fetcher.New()

	var pg *pinger.Pinger
	if stages.NeedsPing() {
		if pg, err = pinger.New(); err != nil {
			log.Fatal().Err(err).Msg("unable to find ping binary")
		}
	}

	return probe.NewPipeline(probe.New(dc, fc, pg), executor.DefaultConfig())
}

func printInstances(surviving []*fedi.Instance) {
	if flags.totals {
		return
	}

	if flags.outFile != "" {
		out := make(map[string]*fedi.Instance, len(surviving))
		for _, ins := range surviving {
			out[ins.Domain] = ins
		}
		if err := registry.SaveFile(flags.outFile, out); err != nil {
			log.Fatal().Err(err).Msg("unable to write output file")
		}
		return
	}

	if flags.asJSON {
		printJSON(surviving)
		return
	}
	for _, ins := range surviving {
		fmt.Println(ins.Record())
	}
}

func printCategories(ctx context.Context, pl *probe.Pipeline, methods []string, surviving []*fedi.Instance) {
	if len(methods) == 0 {
		return
	}

	tallies := make(map[string]*fedi.Tally, len(methods))
	// canonical order regardless of how methods were passed
	for _, method := range probe.CatMethods {
		if !requested(methods, method) {
			continue
		}
		tally, ok := pl.Categorize(ctx, method, surviving)
		if !ok {
			log.Fatal().Str("method", method).Msg("unknown categorization method")
		}
		tallies[method] = tally

		if !flags.asJSON {
			fmt.Printf("%s:Total:%d\n", method, tally.Total)
			for _, cc := range tally.Categories {
				fmt.Printf("%s:%s:%d\n", method, cc.Label, cc.Count)
			}
		}
	}

	if flags.asJSON {
		printJSON(tallies)
	}
}

func printSums(ctx context.Context, pl *probe.Pipeline, methods []string, surviving []*fedi.Instance) {
	if len(methods) == 0 {
		return
	}

	totals := make(map[string]int64, len(methods))
	for _, method := range probe.SumMethods {
		if !requested(methods, method) {
			continue
		}
		total, ok := pl.Total(ctx, method, surviving)
		if !ok {
			log.Fatal().Str("method", method).Msg("unknown sum method")
		}
		totals[method] = total

		if !flags.asJSON {
			fmt.Printf("%s:%d\n", method, total)
		}
	}

	if flags.asJSON {
		printJSON(totals)
	}
}

func requested(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func printJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to marshal results")
	}
	fmt.Println(string(data))
}
