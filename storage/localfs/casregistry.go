package localfs

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casregistry"
)

// DirKey names the store directory in flags and config.
const DirKey = "localfs-dir"

var flagLocalDir string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagLocalDir, DirKey, "", "LocalFS CAS directory (for --backend=localfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagLocalDir)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg[DirKey])
		},
	})
}

func open(dir string) (storage.CAS, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --%s", DirKey)
	}
	cas, err := New(dir)
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
