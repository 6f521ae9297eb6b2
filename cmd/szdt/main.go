package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/internal/config"
	"xdao.co/szdt/keys"

	_ "xdao.co/szdt/storage/grpccas"
	_ "xdao.co/szdt/storage/ipfs"
	_ "xdao.co/szdt/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "unarchive":
		return cmdUnarchive(args[1:], out, errOut)
	case "list":
		return cmdList(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "did":
		return cmdDID(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "szdt: signed, self-verifying archives")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  szdt archive <dir> --sign <nickname> [--role <role>] [-o <file>] [--expires <duration>] [--prev <memo-digest>]")
	fmt.Fprintln(w, "  szdt unarchive <file> [--dir <dir>] [--mode strict|permissive]")
	fmt.Fprintln(w, "  szdt list <file>")
	fmt.Fprintln(w, "  szdt verify <file> [--mode strict|permissive]")
	fmt.Fprintln(w, "  szdt import <file> [--backend <name> | --storage-config] [--bundle <tar>] [backend flags]")
	fmt.Fprintln(w, "  szdt key create <nickname> [--seed-hex <64hex>]")
	fmt.Fprintln(w, "  szdt key derive <nickname> --role <role>")
	fmt.Fprintln(w, "  szdt key list")
	fmt.Fprintln(w, "  szdt key delete <nickname>")
	fmt.Fprintln(w, "  szdt did <nickname> [--role <role>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts:")
	fmt.Fprintln(w, "  --config <file>   config file (default $SZDT_CONFIG or ~/.config/szdt/config.yaml)")
	fmt.Fprintln(w, "  --keys <dir>      keystore directory (overrides keys.dir)")
	fmt.Fprintln(w, "  --debug           debug logging")
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath string
	keysDir    string
	debug      bool
}

func newFlagSet(name string, errOut io.Writer) (*pflag.FlagSet, *common) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "Config file")
	fs.StringVar(&c.keysDir, "keys", "", "Keystore directory")
	fs.BoolVar(&c.debug, "debug", false, "Debug logging")
	return fs, c
}

// parseExit maps a flag parse error to an exit code. ok is false when the
// command should stop.
func parseExit(err error) (code int, ok bool) {
	switch {
	case err == nil:
		return 0, true
	case errors.Is(err, pflag.ErrHelp):
		return 0, false
	default:
		return 2, false
	}
}

// env is the state a subcommand runs with once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func (c *common) env(out, errOut io.Writer) (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.keysDir != "" {
		cfg.Keys.Dir = c.keysDir
	}
	level := slog.LevelInfo
	if c.debug || os.Getenv("SZDT_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	return &env{cfg: cfg, logger: logger, out: out, errOut: errOut}, nil
}

func (e *env) keyStore() (*keys.KeyStore, error) {
	return keys.Open(e.cfg.Keys.Dir)
}

// readOptions merges the configured verification settings with the
// command's --mode and --skew flags. Empty or negative flag values keep the
// configured ones.
func (e *env) readOptions(mode string, skew time.Duration) (archive.ReadOptions, error) {
	var opts archive.ReadOptions
	var err error
	if opts.Skew, err = e.cfg.SkewDuration(); err != nil {
		return opts, err
	}
	if skew >= 0 {
		opts.Skew = skew
	}
	if mode == "" {
		mode = e.cfg.Verify.Mode
	}
	if opts.Mode, err = archive.ParseMode(mode); err != nil {
		return opts, err
	}
	return opts, nil
}

func addReadFlags(fs *pflag.FlagSet, mode *string, skew *time.Duration) {
	fs.StringVar(mode, "mode", "", "Verification mode: strict|permissive (default from config)")
	fs.DurationVar(skew, "skew", -1, "Tolerated clock skew (default from config)")
}
