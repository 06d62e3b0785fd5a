package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	server        string
	name          string
	gameType      string
	stateDir      string
	reconnectBase time.Duration
	reconnectCap  time.Duration
	reconnectMax  int
	tieBreakFor   time.Duration
	verbose       bool
	version       bool

	// practice server
	bind           string
	port           int
	profile        bool
	sessionTimeout time.Duration
}

func (c *Config) validate() error {
	u, err := url.Parse(c.server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid --server (must be an http(s) URL): %q", c.server)
	}
	if c.reconnectBase <= 0 || c.reconnectCap < c.reconnectBase {
		return errors.New("--reconnect-cap must be at least --reconnect-base")
	}
	if c.reconnectMax < 1 {
		return errors.New("--reconnect-max must be at least 1")
	}
	return nil
}

func (c *Config) validatePractice() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".partyline"
	}
	return filepath.Join(dir, "partyline")
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partyline",
		Short:         "A terminal participant for partybox-style game sessions.",
		SilenceErrors: true,
		Version:       releaseVersion,
	}

	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Create a lobby and run it as the host.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg)
		},
	}

	joinCmd := &cobra.Command{
		Use:   "join <game-id>",
		Short: "Join an existing lobby as a player.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			if cfg.name == "" {
				return errors.New("--name is required to join")
			}
			return runJoin(cmd.Context(), cfg, args[0])
		},
	}

	practiceCmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a local practice server to play against.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validatePractice(); err != nil {
				return err
			}
			return runPractice(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "base URL of the game server (env: PARTYLINE_SERVER)")
	fs.StringVarP(&cfg.name, "name", "n", "", "display name to join with (env: PARTYLINE_NAME)")
	fs.StringVarP(&cfg.gameType, "game-type", "g", "quiz", "game type to host (env: PARTYLINE_GAME_TYPE)")
	fs.StringVar(&cfg.stateDir, "state-dir", defaultStateDir(), "directory for persisted tokens (env: PARTYLINE_STATE_DIR)")
	fs.DurationVar(&cfg.reconnectBase, "reconnect-base", time.Second, "initial reconnect delay (env: PARTYLINE_RECONNECT_BASE)")
	fs.DurationVar(&cfg.reconnectCap, "reconnect-cap", 30*time.Second, "maximum reconnect delay (env: PARTYLINE_RECONNECT_CAP)")
	fs.IntVar(&cfg.reconnectMax, "reconnect-max", 6, "reconnect attempts before giving up (env: PARTYLINE_RECONNECT_MAX)")
	fs.DurationVar(&cfg.tieBreakFor, "tie-break-for", 4*time.Second, "duration of the tie-break animation (env: PARTYLINE_TIE_BREAK_FOR)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYLINE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYLINE_VERSION)")

	pfs := practiceCmd.Flags()
	pfs.StringVarP(&cfg.bind, "bind", "b", "127.0.0.1", "address to bind to (env: PARTYLINE_BIND)")
	pfs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYLINE_PORT)")
	pfs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYLINE_PROFILE)")
	pfs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: PARTYLINE_SESSION_TIMEOUT)")

	for _, set := range []*pflag.FlagSet{fs, pfs} {
		set.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = set.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})
	}

	cmd.AddCommand(hostCmd, joinCmd, practiceCmd)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyline v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
