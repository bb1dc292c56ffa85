package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/core"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func newHTTPServer(addr string, handler http.HandlerFunc) *http.Server {
	server := &http.Server{Addr: addr, Handler: handler}
	return server
}

func closeHTTPServer(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// watchConfig applies a subset of Options that are safe to change without
// restarting a goroutine (see core.BPA.UpdateOptions) every time filename
// changes on disk, and rebuilds the router from the reloaded routing section.
// Storage backend, registered CLAs and node identity are fixed for the
// process's lifetime; changing those requires a restart.
func watchConfig(filename string, d *daemon) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Could not start config watcher, hot-reload disabled")
		return
	}

	if err := watcher.Add(filename); err != nil {
		log.WithFields(log.Fields{"error": err, "file": filename}).Warn("Could not watch config file, hot-reload disabled")
		return
	}

	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			conf, err := decodeConfig(filename)
			if err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Failed to reload config, keeping previous settings")
				continue
			}

			d.bpa.UpdateOptions(func(o *core.Options) {
				if conf.Core.MaxPeerAgeMs != 0 {
					o.MaxPeerAgeMs = conf.Core.MaxPeerAgeMs
				}
				if conf.Core.RetryIntervalMs != 0 {
					o.RetryIntervalMs = conf.Core.RetryIntervalMs
				}
				if conf.Core.PollIntervalMs != 0 {
					o.PollIntervalMs = conf.Core.PollIntervalMs
				}
				o.MinForwards = conf.Routing.MinForwards
				o.MaxBroadcasts = conf.Routing.MaxBroadcasts
				o.MsBetweenBroadcast = conf.Routing.MsBetweenBroadcastMs
				o.RequiredForwards = conf.Routing.RequiredForwards
				o.UseReceivedSet = conf.Routing.UseReceivedSet
			})

			if router, rErr := parseRouter(conf.Routing, d.bpa.LocalEID()); rErr != nil {
				log.WithFields(log.Fields{"error": rErr}).Warn("Failed to rebuild router, keeping previous one")
			} else {
				d.bpa.SetRouter(router)
			}

			log.Info("Reloaded configuration")
		}
	}()
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	d, err := parseDaemon(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("Failed to parse config")
	}

	d.bpa.Run()
	watchConfig(os.Args[1], d)

	log.WithFields(log.Fields{"node": d.bpa.LocalEID()}).Info("dtn-lited started")

	waitSigint()
	log.Info("Shutting down..")

	d.Close()
}
