package main

import (
	"context"

	"github.com/cadiot/hub/mail-gateway/service"
	"github.com/cadiot/hub/pkg/audit"
	"github.com/cadiot/hub/pkg/config"
	"github.com/cadiot/hub/pkg/log"
	pkgService "github.com/cadiot/hub/pkg/service"
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

	// Secrets may arrive through the environment instead of the config
	// file; the colon and double-underscore key styles are equivalent.
	if secret := config.EnvValue("Mailbox:ClientSecret", ""); secret != "" && cfg.Clients.Mailbox.Auth != nil {
		cfg.Clients.Mailbox.Auth.ClientSecret = secret
	}
	if password := config.EnvValue("Relay:BrokerPassword", ""); password != "" {
		cfg.Clients.Relay.Password = password
	}

	log.Infof("config: %v", cfg.String())
	s, err := service.New(context.Background(), cfg, audit.NewLogSink())
	if err != nil {
		log.Fatalf("cannot create service: %v", err)
	}
	if err = pkgService.New(s).Serve(); err != nil {
		log.Fatalf("cannot serve service: %v", err)
	}
}
