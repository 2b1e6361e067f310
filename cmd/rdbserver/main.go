package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitmark-inc/logger"
	raven "github.com/getsentry/raven-go"

	"github.com/ndlib/assetdb/config"
	"github.com/ndlib/assetdb/journal"
	"github.com/ndlib/assetdb/server"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	var (
		configFile = flag.String("config-file", "assetdb.conf", "configuration file")
		tokenFile  = flag.String("tokens", "", "file of API keys; none means no authorization")
		showVer    = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("rdbserver %s (server %s)\n", version, server.Version)
		return
	}

	conf, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %s\n", err)
		os.Exit(1)
	}
	if err := logger.Initialise(conf.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed with error: %s\n", err)
		os.Exit(1)
	}
	defer logger.Finalise()
	log := logger.New("main")
	log.Infof("starting rdbserver %s", version)

	if conf.SentryDSN != "" {
		raven.SetDSN(conf.SentryDSN)
		raven.SetRelease(version)
	}

	j, err := journal.Open(conf.Journal.Driver, conf.Journal.DSN)
	if err != nil {
		log.Criticalf("journal: %s", err)
		os.Exit(1)
	}
	defer j.Close()

	s := &server.RESTServer{
		Listen:         conf.Server.Listen,
		StorePath:      conf.Store,
		MaxRequests:    conf.Server.MaxRequests,
		UnloadDelay:    conf.Server.UnloadDelay.Duration,
		SweepInterval:  conf.Server.SweepInterval.Duration,
		ReloadInterval: conf.Server.ReloadInterval.Duration,
		Journal:        j,
	}
	if *tokenFile != "" {
		s.Validator, err = server.NewListDecoderFile(*tokenFile)
		if err != nil {
			log.Criticalf("tokens: %s", err)
			os.Exit(1)
		}
	}

	go signalHandler(s, log)

	if err := s.Run(); err != nil {
		log.Criticalf("server: %s", err)
		os.Exit(1)
	}
	log.Info("shutdown")
}

func signalHandler(s *server.RESTServer, log *logger.L) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received %s", sig)
	if err := s.Stop(); err != nil {
		log.Errorf("stop: %s", err)
	}
}
