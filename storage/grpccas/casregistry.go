package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casregistry"
)

// Flag and config keys.
const (
	TargetKey      = "grpc-target"
	DialTimeoutKey = "grpc-dial-timeout"
	TimeoutKey     = "grpc-timeout"
	MaxMsgBytesKey = "grpc-max-msg-bytes"
)

type settings struct {
	target      string
	dialTimeout time.Duration
	timeout     time.Duration
	maxMsgBytes int
}

var flags = settings{dialTimeout: 5 * time.Second}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to szdt-casd)",
		Usage:       casregistry.UsageCLI,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flags.target, TargetKey, "", "gRPC target host:port (for --backend=grpc)")
			fs.DurationVar(&flags.dialTimeout, DialTimeoutKey, 5*time.Second, "Dial timeout (for --backend=grpc)")
			fs.DurationVar(&flags.timeout, TimeoutKey, 0, "Per-RPC timeout (for --backend=grpc)")
			fs.IntVar(&flags.maxMsgBytes, MaxMsgBytesKey, 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flags)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			s, err := parseSettings(cfg)
			if err != nil {
				return nil, nil, err
			}
			return open(s)
		},
	})
}

func parseSettings(cfg map[string]string) (settings, error) {
	s := settings{target: cfg[TargetKey], dialTimeout: 5 * time.Second}
	var err error
	if v := cfg[DialTimeoutKey]; v != "" {
		if s.dialTimeout, err = time.ParseDuration(v); err != nil {
			return s, fmt.Errorf("grpccas: %s: %w", DialTimeoutKey, err)
		}
	}
	if v := cfg[TimeoutKey]; v != "" {
		if s.timeout, err = time.ParseDuration(v); err != nil {
			return s, fmt.Errorf("grpccas: %s: %w", TimeoutKey, err)
		}
	}
	if v := cfg[MaxMsgBytesKey]; v != "" {
		if s.maxMsgBytes, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("grpccas: %s: %w", MaxMsgBytesKey, err)
		}
	}
	return s, nil
}

func open(s settings) (storage.CAS, func() error, error) {
	target := strings.TrimSpace(s.target)
	if target == "" {
		return nil, nil, fmt.Errorf("missing --%s", TargetKey)
	}
	client, err := Dial(target, DialOptions{Timeout: s.dialTimeout, MaxMsgBytes: s.maxMsgBytes})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = s.timeout
	return client, client.Close, nil
}
