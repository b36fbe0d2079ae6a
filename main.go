// Package main provides the entry point for the Aperture CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/aperture-reader/aperture/book"
	"github.com/aperture-reader/aperture/library"
	"github.com/aperture-reader/aperture/narrate"
	"github.com/aperture-reader/aperture/narrate/audio"
	"github.com/aperture-reader/aperture/narrate/cache"
	"github.com/aperture-reader/aperture/narrate/engine"
	"github.com/aperture-reader/aperture/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile       string
	pager            bool
	style            string
	width            uint
	showAllFiles     bool
	preserveNewLines bool
	mouse            bool
	voice            string
	speed            float64
	debug            bool

	rootCmd = &cobra.Command{
		Use:   "aperture [BOOK|DIR]",
		Short: "Read books in your terminal, out loud if you like",
		Long: paragraph(
			fmt.Sprintf("\nRead EPUB and markdown books in your terminal, %s.", keyword("narrated sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// voiceSpec is one entry of the config file's voices map.
type voiceSpec struct {
	Name     string `mapstructure:"name"`
	Language string `mapstructure:"language"`
}

// defaultVoices is the catalog used when the config file doesn't declare
// one. The keys double as piper model names.
var defaultVoices = []narrate.Voice{
	{Key: "en_US-lessac-medium", DisplayName: "Lessac (US English)", Language: "en-US"},
	{Key: "en_US-amy-medium", DisplayName: "Amy (US English)", Language: "en-US"},
	{Key: "en_GB-alan-medium", DisplayName: "Alan (British English)", Language: "en-GB"},
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		style = expandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	pager = viper.GetBool("pager")
	showAllFiles = viper.GetBool("all")
	preserveNewLines = viper.GetBool("preserveNewLines")
	voice = viper.GetString("voice")
	speed = viper.GetFloat64("speed")

	if speed < 0.5 || speed > 2.0 {
		return fmt.Errorf("speed must be between 0.5 and 2.0, got %.2g", speed)
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = "notty"
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	// if stdin is a pipe then render it as plain markdown. note that you
	// can also explicitly use a - to read from stdin.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes {
		return executeStdin(cmd, os.Stdout)
	}

	switch len(args) {
	// TUI running on cwd
	case 0:
		return runTUI("")

	// A book file or a directory to browse
	default:
		arg := args[0]
		if arg == "-" {
			return executeStdin(cmd, os.Stdout)
		}

		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("unable to stat path: %w", err)
		}
		if info.IsDir() {
			p, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("unable to get absolute path: %w", err)
			}
			return runTUI(p)
		}

		// Render straight to the terminal when stdout is not a TTY or the
		// pager was asked for; otherwise read interactively.
		if pager || cmd.Flags().Changed("pager") || !term.IsTerminal(int(os.Stdout.Fd())) {
			return executeArg(cmd, arg, os.Stdout)
		}
		return runTUI(arg)
	}
}

func executeStdin(cmd *cobra.Command, w io.Writer) error {
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("unable to read from stdin: %w", err)
	}
	content := string(book.StripFrontmatter(b))
	return renderAndDisplay(cmd, content, w)
}

func executeArg(cmd *cobra.Command, arg string, w io.Writer) error {
	bk, err := book.Open(arg)
	if err != nil {
		return err
	}
	defer bk.Close() //nolint:errcheck

	var sb strings.Builder
	for i := 0; i < bk.Chapters(); i++ {
		ch, err := bk.Chapter(i)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(ch.Markdown)
	}
	return renderAndDisplay(cmd, sb.String(), w)
}

func renderAndDisplay(cmd *cobra.Command, content string, w io.Writer) error {
	// initialize glamour
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithStylePath(style),
		glamour.WithWordWrap(int(width)), //nolint:gosec
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(content)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}

	// display
	if pager || cmd.Flags().Changed("pager") {
		pagerCmd := os.Getenv("PAGER")
		if pagerCmd == "" {
			pagerCmd = "less -r"
		}

		pa := strings.Split(pagerCmd, " ")
		c := exec.Command(pa[0], pa[1:]...) //nolint:gosec
		c.Stdin = strings.NewReader(out)
		c.Stdout = os.Stdout
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}
		return nil
	}

	if _, err = fmt.Fprint(w, out); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

func buildCatalog() (*narrate.Catalog, error) {
	specs := map[string]voiceSpec{}
	if err := viper.UnmarshalKey("voices", &specs); err != nil {
		return nil, fmt.Errorf("invalid voices configuration: %w", err)
	}
	if len(specs) == 0 {
		return narrate.NewCatalog(defaultVoices...)
	}

	voices := make([]narrate.Voice, 0, len(specs))
	for key, s := range specs {
		name := s.Name
		if name == "" {
			name = key
		}
		voices = append(voices, narrate.Voice{Key: key, DisplayName: name, Language: s.Language})
	}
	catalog, err := narrate.NewCatalog(voices...)
	if err != nil {
		return nil, fmt.Errorf("invalid voices configuration: %w", err)
	}
	return catalog, nil
}

func engineConfig() engine.Config {
	return engine.Config{
		Kind: engine.Kind(viper.GetString("engine")),
		Piper: engine.PiperConfig{
			Binary:   viper.GetString("piper.binary"),
			ModelDir: expandPath(viper.GetString("piper.model_dir")),
			Timeout:  viper.GetDuration("piper.timeout"),
		},
		HTTP: engine.HTTPConfig{
			URL:               viper.GetString("http.url"),
			APIKey:            viper.GetString("http.api_key"),
			SampleRate:        viper.GetInt("sample_rate"),
			Timeout:           viper.GetDuration("http.timeout"),
			RequestsPerMinute: viper.GetInt("http.requests_per_minute"),
		},
	}
}

func runTUI(path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or auto if unset
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}

	cfg.Path = path
	cfg.ShowAllFiles = showAllFiles
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	cfg.PreserveNewLines = preserveNewLines
	cfg.Voice = voice
	cfg.Speed = speed

	scope := gap.NewScope(gap.User, "aperture")

	catalog, err := buildCatalog()
	if err != nil {
		return err
	}
	if cfg.Voice == "" && len(catalog.Voices()) > 0 {
		cfg.Voice = catalog.Voices()[0].Key
	}

	// The audio cache is an optimization; run without one if it can't be
	// set up.
	var store *cache.Store
	cacheDir := expandPath(viper.GetString("cache.dir"))
	if cacheDir == "" {
		cacheDir, err = scope.CacheDir()
		if err != nil {
			log.Warn("could not resolve cache directory", "error", err)
		} else {
			cacheDir = filepath.Join(cacheDir, "audio")
		}
	}
	if cacheDir != "" {
		store, err = cache.NewStore(cacheDir, viper.GetInt64("cache.budget_mb")<<20)
		if err != nil {
			log.Warn("audio cache disabled", "error", err)
			store = nil
		}
	}

	if viper.GetString("piper.model_dir") == "" {
		if modelDir, err := scope.DataPath("models"); err == nil {
			viper.Set("piper.model_dir", modelDir)
		}
	}

	// One engine per catalog language. A language whose engine can't start
	// just drops out of narration; reading still works.
	engCfg := engineConfig()
	engines := make(map[string]narrate.Engine)
	for _, lang := range catalog.Languages() {
		eng, err := engine.New(engCfg, lang, store)
		if err != nil {
			log.Warn("engine setup failed", "language", lang, "error", err)
			continue
		}
		if err := eng.Available(); err != nil {
			log.Warn("engine unavailable", "language", lang, "engine", eng.Name(), "error", err)
			continue
		}
		engines[lang] = eng
	}

	// No device means no narration, not no reader.
	var ctrl *narrate.Controller
	device, err := audio.NewDevice(viper.GetInt("sample_rate"))
	if err != nil {
		log.Warn("audio device unavailable, narration disabled", "error", err)
	} else {
		ctrl = narrate.NewController(catalog, engines, device, narrate.Config{
			QueueDepth: viper.GetInt("queue_depth"),
		})
	}

	dataDir, err := scope.DataPath("")
	if err != nil {
		return fmt.Errorf("could not resolve data directory: %w", err)
	}
	lib, err := library.Load(dataDir)
	if err != nil {
		return fmt.Errorf("could not load library: %w", err)
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, ctrl, catalog, lib).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	if ctrl != nil {
		ctrl.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn("audio cache close failed", "error", err)
		}
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().BoolVarP(&pager, "pager", "p", false, "display with pager")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to disable)")
	rootCmd.Flags().BoolVarP(&showAllFiles, "all", "a", false, "show system files and directories (TUI-mode only)")
	rootCmd.Flags().BoolVarP(&preserveNewLines, "preserve-new-lines", "n", false, "preserve newlines in the output")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().StringVar(&voice, "voice", "", "voice key for narration")
	rootCmd.Flags().Float64Var(&speed, "speed", 1.0, "narration speed (0.5 to 2.0)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	_ = rootCmd.Flags().MarkHidden("debug")

	// Config bindings
	_ = viper.BindPFlag("pager", rootCmd.Flags().Lookup("pager"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("preserveNewLines", rootCmd.Flags().Lookup("preserve-new-lines"))
	_ = viper.BindPFlag("all", rootCmd.Flags().Lookup("all"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
	viper.SetDefault("all", true)

	// Narration defaults
	viper.SetDefault("voice", "")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("engine", "piper")
	viper.SetDefault("sample_rate", 22050)
	viper.SetDefault("queue_depth", 10)
	viper.SetDefault("piper.binary", "piper")
	viper.SetDefault("piper.model_dir", "")
	viper.SetDefault("piper.timeout", "30s")
	viper.SetDefault("http.url", "")
	viper.SetDefault("http.api_key", "")
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("http.requests_per_minute", 60)
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.budget_mb", 64)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "aperture")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "aperture")}, dirs...)
	}

	if c := os.Getenv("APERTURE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("aperture")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("aperture")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "aperture.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// expandPath expands a tilde in a path.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	s, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return s
}
