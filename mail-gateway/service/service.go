package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-co-op/gocron/v2"

	"github.com/cadiot/hub/mail-gateway/mailbox"
	"github.com/cadiot/hub/mail-gateway/relaygw"
	"github.com/cadiot/hub/pkg/audit"
	"github.com/cadiot/hub/pkg/fn"
	"github.com/cadiot/hub/pkg/log"
	"github.com/cadiot/hub/pkg/net/listener"
)

// Server handles HTTP requests and runs the subscription lifecycle timer.
type Server struct {
	server    *http.Server
	listener  *listener.Server
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

// New parses configuration and creates a new Server. The subscription
// timer and the webhook handler share no mutable state beyond the cached
// broker connection inside the relay client.
func New(ctx context.Context, config Config, sink audit.Sink) (*Server, error) {
	lis, err := listener.New(config.APIs.HTTP.Connection)
	if err != nil {
		return nil, fmt.Errorf("cannot create http listener: %w", err)
	}
	var cleanUp fn.FuncList
	cleanUp.AddFunc(func() {
		if err := lis.Close(); err != nil {
			log.Errorf("cannot close listener: %v", err)
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	cleanUp.AddFunc(cancel)

	mailClient := mailbox.New(ctx, config.Clients.Mailbox)
	relayClient := relaygw.New(config.Clients.Relay)

	executor := NewDispatchExecutor(config.Dispatch, mailClient, relayClient, sink)
	subManager := NewSubscriptionManager(config.Subscription, mailClient, sink)

	scheduler, err := NewSubscriptionChecker(ctx, subManager)
	if err != nil {
		cleanUp.Execute()
		return nil, fmt.Errorf("cannot start subscription checker: %w", err)
	}

	requestHandler := NewRequestHandler(config, executor, mailClient, sink)

	return &Server{
		server:    NewHTTP(requestHandler),
		listener:  lis,
		scheduler: scheduler,
		cancel:    cancel,
	}, nil
}

// Serve starts the service's HTTP server and blocks
func (s *Server) Serve() error {
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close ends serving
func (s *Server) Close() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		log.Errorf("cannot shut down scheduler: %v", err)
	}
	return s.server.Shutdown(context.Background())
}
