// Package main provides the CLI entrypoint for charlm.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/charlm/internal/config"
	"github.com/verte-zerg/charlm/internal/corpus"
	"github.com/verte-zerg/charlm/internal/langmodel"
	"github.com/verte-zerg/charlm/internal/logging"
	"github.com/verte-zerg/charlm/internal/model"
	"github.com/verte-zerg/charlm/internal/stats"
	"github.com/verte-zerg/charlm/internal/store"
	"github.com/verte-zerg/charlm/internal/tui"
)

const (
	defaultTextLength = 200
	defaultLengthMode = "total"
	defaultLogLevel   = "warn"
	defaultLogFormat  = "text"
	defaultLimit      = 20
	defaultTop        = 5
	randomMode        = "random"
)

var (
	genLengthMode string
	genSeed       int64
	genNoHistory  bool
	logLevel      string
	logFormat     string

	inspectWindow string
	inspectLimit  int
	inspectTop    int
	inspectDump   bool

	exploreLength int
	exploreRandom bool

	historyCorpus string
	historySince  string
	historyLast   int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "charlm <windowLength> <initialText> <textLength> <random|fixed> <corpusPath>",
		Short:         "Character n-gram text generator",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.ExactArgs(5),
		RunE:          runGenerateCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&genLengthMode, "length-mode", defaultLengthMode, "how textLength is counted: total or append")
	flags.Int64Var(&genSeed, "seed", model.FixedSeed, "seed used when generation is not random")
	flags.BoolVar(&genNoHistory, "no-history", false, "do not record runs in the history database")
	flags.StringVar(&logLevel, "log-level", defaultLogLevel, "diagnostic log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", defaultLogFormat, "diagnostic log format: text or json")

	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newExploreCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runGenerateCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadCommonConfig(cmd)
	if err != nil {
		return err
	}

	windowLength, err := parseIntArg("windowLength", args[0])
	if err != nil {
		return err
	}
	textLength, err := parseIntArg("textLength", args[2])
	if err != nil {
		return err
	}
	cfg := model.Config{
		WindowLength: windowLength,
		InitialText:  args[1],
		TextLength:   textLength,
		LengthMode:   genLengthMode,
		Random:       isRandomMode(args[3]),
		Seed:         genSeed,
		CorpusPath:   args[4],
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	logger := newLogger()
	lm, err := newLanguageModel(cfg, logger)
	if err != nil {
		return err
	}

	started := time.Now()
	chars, err := corpus.Train(lm, cfg.CorpusPath)
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}
	if len([]rune(cfg.InitialText)) < cfg.WindowLength {
		logErrf("initial text is shorter than the window (%d); nothing generated\n", cfg.WindowLength)
	}
	text := lm.Generate(cfg.InitialText, cfg.TextLength)
	ended := time.Now()

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), text); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if !historyEnabled(fileCfg) {
		return nil
	}
	run := model.RunRecord{
		StartedAt:    started,
		EndedAt:      ended,
		CorpusPath:   absPath(cfg.CorpusPath),
		WindowLength: cfg.WindowLength,
		LengthMode:   lm.LengthMode().String(),
		Seeded:       !cfg.Random,
		Seed:         cfg.Seed,
		InitialText:  cfg.InitialText,
		TextLength:   cfg.TextLength,
		Output:       text,
		Windows:      lm.Len(),
		CorpusChars:  chars,
		DurationMs:   ended.Sub(started).Milliseconds(),
	}
	saveRun(logger, run)
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [windowLength] [corpusPath]",
		Short: "Print statistics of a trained model",
		Args:  cobra.RangeArgs(0, 2),
		RunE:  runInspectCmd,
	}
	cmd.Flags().StringVar(&inspectWindow, "window", "", "show the observations of one window")
	cmd.Flags().IntVar(&inspectLimit, "limit", defaultLimit, "number of windows to list (0 for all)")
	cmd.Flags().IntVar(&inspectTop, "top", defaultTop, "continuations shown per window")
	cmd.Flags().BoolVar(&inspectDump, "dump", false, "print the raw model representation")
	return cmd
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadCommonConfig(cmd)
	if err != nil {
		return err
	}
	windowLength, corpusPath, err := resolveModelArgs(args, fileCfg)
	if err != nil {
		return err
	}
	if inspectLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}

	logger := newLogger()
	lm := langmodel.New(windowLength, langmodel.WithLogger(logger))
	chars, err := corpus.Train(lm, corpusPath)
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}
	logger.Info("model trained", "corpus", corpusPath, "characters", chars, "windows", lm.Len())

	out := cmd.OutOrStdout()
	if inspectDump {
		if _, err := io.WriteString(out, lm.String()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	if inspectWindow != "" {
		ws, ok := lm.Stats(inspectWindow)
		if !ok {
			return fmt.Errorf("window %s not found in model", stats.WindowLabel(inspectWindow))
		}
		return stats.RenderWindow(out, inspectWindow, ws)
	}
	return stats.RenderModel(out, lm, stats.ModelOptions{
		Limit: inspectLimit,
		Top:   inspectTop,
		Width: stats.TerminalWidth(),
	})
}

func newExploreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore [windowLength] [corpusPath]",
		Short: "Generate text interactively",
		Args:  cobra.RangeArgs(0, 2),
		RunE:  runExploreCmd,
	}
	cmd.Flags().IntVar(&exploreLength, "length", defaultTextLength, "text length per generation")
	cmd.Flags().BoolVar(&exploreRandom, "random", false, "seed from the clock instead of --seed")
	return cmd
}

func runExploreCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadCommonConfig(cmd)
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "length", &exploreLength, fileCfg.Generate.Length)
	applyBoolConfig(cmd, "random", &exploreRandom, fileCfg.Generate.Random)

	windowLength, corpusPath, err := resolveModelArgs(args, fileCfg)
	if err != nil {
		return err
	}
	cfg := model.Config{
		WindowLength: windowLength,
		TextLength:   exploreLength,
		LengthMode:   genLengthMode,
		Random:       exploreRandom,
		Seed:         genSeed,
		CorpusPath:   absPath(corpusPath),
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("explore needs an interactive terminal")
	}

	// The TUI owns the screen, so diagnostics below warn would corrupt it.
	logger := logging.New(logging.Config{Level: "error", Format: logFormat})
	lm, err := newLanguageModel(cfg, logger)
	if err != nil {
		return err
	}
	chars, err := corpus.Train(lm, corpusPath)
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}

	var st *store.Store
	if historyEnabled(fileCfg) {
		st, err = store.Open(config.DefaultDBPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
	}

	explorer := tui.NewModel(lm, st, cfg, chars)
	program := tea.NewProgram(explorer, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyCorpus, "corpus", "", "corpus path filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadCommonConfig(cmd); err != nil {
		return err
	}
	cfg, err := historyConfig(historyCorpus, historySince, historyLast)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(context.Background(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return stats.RenderHistory(cmd.OutOrStdout(), report)
}

func historyConfig(corpusPath, since string, last int) (model.HistoryConfig, error) {
	if last < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	cfg := model.HistoryConfig{Last: last}
	if corpusPath != "" {
		cfg.CorpusPath = absPath(corpusPath)
	}
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		cfg.Since = &parsed
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// loadCommonConfig reads the config file and applies the settings shared by
// every command to flags the user did not set.
func loadCommonConfig(cmd *cobra.Command) (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "length-mode", &genLengthMode, fileCfg.Generate.LengthMode)
	applyInt64Config(cmd, "seed", &genSeed, fileCfg.Generate.Seed)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)
	if !logging.ValidFormat(logFormat) {
		return config.FileConfig{}, fmt.Errorf("--log-format must be text or json")
	}
	return fileCfg, nil
}

// resolveModelArgs returns the window length and corpus path from the
// optional positional arguments, falling back to the config file.
func resolveModelArgs(args []string, fileCfg config.FileConfig) (int, string, error) {
	windowLength := 0
	if fileCfg.Generate.Window != nil {
		windowLength = *fileCfg.Generate.Window
	}
	corpusPath := ""
	if fileCfg.Generate.Corpus != nil {
		corpusPath = *fileCfg.Generate.Corpus
	}
	if len(args) > 0 {
		parsed, err := parseIntArg("windowLength", args[0])
		if err != nil {
			return 0, "", err
		}
		windowLength = parsed
	}
	if len(args) > 1 {
		corpusPath = args[1]
	}
	if windowLength <= 0 {
		return 0, "", fmt.Errorf("windowLength must be > 0 (argument or [generate] window)")
	}
	if corpusPath == "" {
		return 0, "", fmt.Errorf("corpus path is required (argument or [generate] corpus)")
	}
	return windowLength, corpusPath, nil
}

func newLanguageModel(cfg model.Config, logger *slog.Logger) (*langmodel.LanguageModel, error) {
	mode, ok := langmodel.ParseLengthMode(cfg.LengthMode)
	if !ok {
		return nil, fmt.Errorf("unknown length mode %q", cfg.LengthMode)
	}
	opts := []langmodel.Option{
		langmodel.WithLengthMode(mode),
		langmodel.WithLogger(logger),
	}
	if !cfg.Random {
		opts = append(opts, langmodel.WithSeed(cfg.Seed))
	}
	return langmodel.New(cfg.WindowLength, opts...), nil
}

func newLogger() *slog.Logger {
	return logging.New(logging.Config{Level: logLevel, Format: logFormat})
}

func historyEnabled(fileCfg config.FileConfig) bool {
	if genNoHistory {
		return false
	}
	if fileCfg.Generate.History != nil {
		return *fileCfg.Generate.History
	}
	return true
}

// saveRun records a run. Failures are reported but never fail the command.
func saveRun(logger *slog.Logger, run model.RunRecord) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		logger.Warn("failed to open history db", "err", err)
		return
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	id, err := st.InsertRun(context.Background(), run)
	if err != nil {
		logger.Warn("failed to save run", "err", err)
		return
	}
	logger.Debug("run saved", "id", id)
}

func isRandomMode(value string) bool {
	return value == randomMode
}

func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, value)
	}
	return n, nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# charlm configuration
# Uncomment a value to enable it. CLI flags and arguments override config values.

[generate]
# window = 4              # Window length for inspect/explore when not given
# corpus = "corpus.txt"   # Corpus path for inspect/explore when not given
# length = %d             # Text length per generation in explore
# length-mode = %q     # How text length is counted: total or append
# seed = %d               # Seed for fixed (non-random) generation
# random = false          # Seed explore from the clock
# history = true          # Record runs in the history database

[log]
# level = %q            # debug, info, warn, error
# format = %q           # text or json
`,
		defaultTextLength,
		defaultLengthMode,
		model.FixedSeed,
		defaultLogLevel,
		defaultLogFormat,
	)
}

func validateConfig(cfg model.Config) error {
	if cfg.WindowLength <= 0 {
		return fmt.Errorf("windowLength must be > 0")
	}
	if cfg.TextLength < 0 {
		return fmt.Errorf("textLength must be >= 0")
	}
	if _, ok := langmodel.ParseLengthMode(cfg.LengthMode); !ok {
		return fmt.Errorf("--length-mode must be total or append")
	}
	if cfg.CorpusPath == "" {
		return fmt.Errorf("corpus path must not be empty")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
