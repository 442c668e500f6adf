package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iict/nessi"
)

var version = "dev"

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario description (YAML or JSON)")
	duration := flag.Float64("duration", 0.0, "simulated duration in seconds, overrides the scenario")
	tracePath := flag.String("trace", "", "write frame trace records to this file (YAML or JSON)")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9100")
	verbose := flag.Bool("v", false, "debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nessi %s\n", version)
		os.Exit(0)
	}
	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "a scenario description is required, see -help")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Str("service", "nessi").Logger()

	ext := path.Ext(*scenarioPath)
	useYAML := ext == ".yaml" || ext == ".yml" || ext == ".YAML"
	sd, err := nessi.ReadScenarioDesc(*scenarioPath, useYAML, nil)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *scenarioPath).Msg("cannot read scenario")
	}

	sim := nessi.CreateSimulator()
	sim.SetLogger(logger)
	if *tracePath != "" {
		sim.TraceMgr.SetActive(true)
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		sim.SetMetrics(nessi.CreateSimMetrics(reg))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("serving metrics")
	}

	scn, err := nessi.BuildScenario(sim, sd)
	if err != nil {
		logger.Fatal().Err(err).Str("scenario", sd.Name).Msg("cannot build scenario")
	}

	runFor := scn.RunFor
	if *duration > 0 {
		runFor = *duration
	}

	logger.Info().Str("scenario", scn.Name).Float64("duration", runFor).Msg("starting run")
	start := time.Now()
	var endTime float64
	if runFor > 0 {
		endTime = sim.Run(runFor)
	} else {
		endTime = sim.RunToCompletion()
	}
	logger.Info().Str("scenario", scn.Name).
		Float64("simulated", endTime).
		Dur("elapsed", time.Since(start)).
		Msg("run finished")

	if *tracePath != "" {
		if err := sim.TraceMgr.WriteToFile(*tracePath); err != nil {
			logger.Fatal().Err(err).Str("path", *tracePath).Msg("cannot write trace")
		}
		logger.Info().Str("path", *tracePath).Msg("trace written")
	}
}
