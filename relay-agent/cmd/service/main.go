package main

import (
	"github.com/cadiot/hub/pkg/config"
	"github.com/cadiot/hub/pkg/log"
	pkgService "github.com/cadiot/hub/pkg/service"
	"github.com/cadiot/hub/relay-agent/actuator"
	"github.com/cadiot/hub/relay-agent/service"
)

func main() {
	var cfg service.Config
	if err := config.LoadAndValidateConfig(&cfg); err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger, err := log.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("cannot create logger: %v", err)
	}
	log.Set(logger)

	// The device key may arrive through the environment instead of the
	// config file; the colon and double-underscore key styles are
	// equivalent.
	if key := config.EnvValue("Device:Key", ""); key != "" {
		cfg.Device.Key = key
	}

	log.Infof("config: %v", cfg.String())

	pin, err := actuator.OpenSysfsPin(cfg.Actuator.GPIO)
	if err != nil {
		log.Fatalf("cannot open relay output: %v", err)
	}
	agent := service.New(cfg, actuator.New(pin, cfg.Actuator.PulseDuration))
	agent.SetStateChangeHandler(func(state service.State) {
		log.Infof("connectivity: %v", state)
	})

	if err := pkgService.New(agent).Serve(); err != nil {
		log.Fatalf("cannot serve service: %v", err)
	}
}
