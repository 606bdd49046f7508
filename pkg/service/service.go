package service

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cadiot/hub/pkg/fn"
	"github.com/hashicorp/go-multierror"
)

type Service struct {
	services []APIService
	done     chan struct{}
	sigs     chan os.Signal
	closeFn  fn.FuncList
}

type APIService interface {
	Serve() error
	Close() error
}

func New(services ...APIService) *Service {
	return &Service{
		sigs:     make(chan os.Signal, 1),
		done:     make(chan struct{}),
		services: services,
	}
}

// Add adds other API services. This needs to be called before Serve.
func (s *Service) Add(services ...APIService) {
	s.services = append(s.services, services...)
}

// Serve runs all services and blocks until a termination signal arrives or
// Close is called.
func (s *Service) Serve() error {
	defer close(s.done)
	var wg sync.WaitGroup
	errCh := make(chan error, len(s.services)*2)
	wg.Add(len(s.services))
	for _, apiService := range s.services {
		go func(serve func() error) {
			defer wg.Done()
			errCh <- serve()
		}(apiService.Serve)
	}

	signal.Notify(s.sigs,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	<-s.sigs
	for _, apiService := range s.services {
		errCh <- apiService.Close()
	}
	wg.Wait()
	s.closeFn.Execute()

	var errors *multierror.Error
	for {
		select {
		case err := <-errCh:
			errors = multierror.Append(errors, err)
		default:
			return errors.ErrorOrNil()
		}
	}
}

// Close turns off the server.
func (s *Service) Close() error {
	select {
	case s.sigs <- syscall.SIGTERM:
	default:
	}
	<-s.done
	return nil
}

// AddCloseFunc adds a function to be called when the server is closed
func (s *Service) AddCloseFunc(f func()) {
	s.closeFn.AddFunc(f)
}
