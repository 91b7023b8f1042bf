package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meditreat/meditreat/internal/config"
)

// answers are the choices collected by meditreat init.
type answers struct {
	Bind      string
	Storage   string
	Provider  string
	KeyEnv    string
	Model     string
	WebSearch bool
}

func defaultAnswers() answers {
	return answers{
		Bind:     "127.0.0.1:8080",
		Storage:  config.StorageSQLite,
		Provider: config.ProviderOpenAI,
		KeyEnv:   "OPENAI_API_KEY",
	}
}

func initCmd() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = filepath.Join(config.ConfigDir(), config.FileName)
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			a := defaultAnswers()
			if err := askForm(&a).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			data, err := renderConfig(a)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nExport %s before running meditreat start.\n", output, a.KeyEnv)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default: user config dir)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func askForm(a *answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.Bind),
			huh.NewSelect[string]().
				Title("Chat history storage").
				Options(
					huh.NewOption("SQLite file", config.StorageSQLite),
					huh.NewOption("Redis", config.StorageRedis),
					huh.NewOption("In memory (lost on restart)", config.StorageMemory),
				).
				Value(&a.Storage),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("OpenAI", config.ProviderOpenAI),
					huh.NewOption("Anthropic", config.ProviderAnthropic),
				).
				Value(&a.Provider),
			huh.NewInput().
				Title("Environment variable holding the API key").
				Value(&a.KeyEnv).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Model (empty for the provider default)").
				Value(&a.Model),
			huh.NewConfirm().
				Title("Let replies consult web search?").
				Value(&a.WebSearch),
		),
	).WithTheme(huh.ThemeCharm())
}

// renderConfig produces the YAML written by init. API keys are referenced
// through the environment, never written to disk.
func renderConfig(a answers) ([]byte, error) {
	type provider struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		APIKeys []string `yaml:"api_keys"`
		Model   string   `yaml:"model,omitempty"`
	}
	doc := struct {
		Version string            `yaml:"version"`
		Server  map[string]string `yaml:"server"`
		Storage map[string]string `yaml:"storage"`
		LLM     struct {
			Default   string     `yaml:"default"`
			Providers []provider `yaml:"providers"`
		} `yaml:"llm"`
		WebSearch map[string]bool `yaml:"web_search"`
	}{
		Version:   "1",
		Server:    map[string]string{"bind": a.Bind},
		Storage:   map[string]string{"backend": a.Storage},
		WebSearch: map[string]bool{"enabled": a.WebSearch},
	}
	doc.LLM.Default = a.Provider
	doc.LLM.Providers = []provider{{
		Name:    a.Provider,
		Type:    a.Provider,
		APIKeys: []string{"${" + a.KeyEnv + "}"},
		Model:   a.Model,
	}}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("init: encode: %w", err)
	}
	return out, nil
}
