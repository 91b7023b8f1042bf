package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/meditreat/meditreat/pkg/app"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage meditreat as an OS service",
	}

	control := func(action, done string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the meditreat service", action),
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := app.NewService(runParams(cmd))
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s.\n", done)
				return nil
			},
		}
	}

	cmd.AddCommand(
		control("install", "installed"),
		control("uninstall", "uninstalled"),
		control("start", "started"),
		control("stop", "stopped"),
		&cobra.Command{
			Use:    "run",
			Short:  "Run under the service manager",
			Hidden: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := app.NewService(runParams(cmd))
				if err != nil {
					return err
				}
				return svc.Run()
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the service status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := app.NewService(runParams(cmd))
				if err != nil {
					return err
				}
				st, err := svc.Status()
				if err != nil {
					return fmt.Errorf("service status: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
				return nil
			},
		},
	)
	return cmd
}

func statusText(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
