package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# style name or JSON path (default "auto")
style: "auto"
# mouse support (TUI-mode only)
mouse: false
# use pager to display rendered output
pager: false
# word-wrap at width
width: 80
# show all files, including hidden and ignored.
all: false

# Narration
#
# voice key used when narration starts (empty picks the first catalog voice)
voice: ""
# narration speed, 0.5 to 2.0
speed: 1.0
# synthesis engine: piper or http
engine: "piper"
# PCM sample rate shared by the engine and the audio device
sample_rate: 22050
# how many sentences synthesis may run ahead of playback
queue_depth: 10

piper:
  # piper executable
  binary: "piper"
  # directory holding one <voice>.onnx model per catalog voice
  # model_dir: "~/.local/share/aperture/models"
  # synthesis timeout per sentence
  timeout: "30s"

http:
  # synthesis endpoint, e.g. "http://localhost:5000/api/tts"
  url: ""
  # api_key: ""
  timeout: "30s"
  requests_per_minute: 60

cache:
  # synthesized audio cache location (defaults to the user cache dir)
  # dir: "~/.cache/aperture/audio"
  # cache size budget in megabytes
  budget_mb: 64

# Voice catalog. Keys double as piper model names.
# voices:
#   en_US-lessac-medium:
#     name: "Lessac (US English)"
#     language: "en-US"
#   en_GB-alan-medium:
#     name: "Alan (British English)"
#     language: "en-GB"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the aperture config file",
	Long:    paragraph(fmt.Sprintf("\n%s the aperture config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("aperture config\naperture config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Aperture", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
