package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
)

// ServiceName is the name registered with the OS service manager.
const ServiceName = "meditreat"

// program adapts RunContext to the service manager's start and stop calls.
type program struct {
	params RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := RunContext(ctx, p.params)
		p.done <- err
		if err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "meditreat:", err)
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// NewService describes meditreat to the OS service manager. The installed
// service runs "meditreat service run" with the absolute config path.
func NewService(params RunParams) (service.Service, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("app: config path: %w", err)
		}
		params.ConfigPath = abs
		args = append(args, "--config", abs)
	}

	svc, err := service.New(&program{params: params}, &service.Config{
		Name:        ServiceName,
		DisplayName: "Meditreat",
		Description: "Medical chatbot backend serving chat over HTTP and websockets.",
		Arguments:   args,
	})
	if err != nil {
		return nil, fmt.Errorf("app: service: %w", err)
	}
	return svc, nil
}
