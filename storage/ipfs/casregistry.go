package ipfs

import (
	"github.com/spf13/pflag"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casregistry"
)

// Flag and config keys.
const (
	BinKey  = "ipfs-bin"
	RepoKey = "ipfs-path"
)

var flagOpts Options

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local IPFS repo via the Kubo CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagOpts.Bin, BinKey, "", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagOpts.Repo, RepoKey, "", "IPFS repo path; sets IPFS_PATH (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(flagOpts), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return New(Options{Bin: cfg[BinKey], Repo: cfg[RepoKey]}), nil, nil
		},
	})
}
