// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iotgw/edgegateway/internal/gwconfig"
	"github.com/iotgw/edgegateway/internal/service"
	"github.com/iotgw/edgegateway/pkg/log"
	"github.com/iotgw/edgegateway/pkg/runtimeEnv"
)

var version = "development"

func main() {
	cliInit()

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if flagVersion {
		log.Printf("gatewayd version %s", version)
		return
	}

	// See https://github.com/google/gops (Runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := gwconfig.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading %s: %s", flagConfigFile, err.Error())
	}

	gw, err := service.New(cfg)
	if err != nil {
		log.Fatalf("initializing gateway: %s", err.Error())
	}

	var wg sync.WaitGroup

	metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metricsMux(gw, cfg)}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("metrics server listening at %s%s", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err.Error())
		}
	}()

	healthServer := &http.Server{Addr: cfg.Health.ListenAddr, Handler: healthMux(gw)}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("health server listening at %s", cfg.Health.ListenAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("health server: %s", err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	gw.Start(ctx)

	wg.Add(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")

		cancel()
		_ = metricsServer.Shutdown(context.Background())
		_ = healthServer.Shutdown(context.Background())
		gw.Stop()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	wg.Wait()
	log.Print("Gracefull shutdown completed!")
}

func metricsMux(gw *service.Gateway, cfg *gwconfig.GatewayConfig) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(gw.PromRegistry(), promhttp.HandlerOpts{}))
	return mux
}

func healthMux(gw *service.Gateway) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", gw.HealthAggregator().Handler())
	return mux
}
