package listener

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/cadiot/hub/pkg/fn"
)

// Server is a TCP listener with optional TLS and registered close functions.
type Server struct {
	net.Listener
	closeFn fn.FuncList
}

// New creates a listener according to config.
func New(config Config) (*Server, error) {
	lis, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %v: %w", config.Addr, err)
	}
	if config.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(config.TLS.CertFile, config.TLS.KeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, fmt.Errorf("cannot load certificate: %w", err)
		}
		lis = tls.NewListener(lis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	return &Server{Listener: lis}, nil
}

// AddCloseFunc adds a function to be called when the listener is closed.
func (s *Server) AddCloseFunc(f func()) {
	s.closeFn.AddFunc(f)
}

func (s *Server) Close() error {
	defer s.closeFn.Execute()
	return s.Listener.Close()
}
