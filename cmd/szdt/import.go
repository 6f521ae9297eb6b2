package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/bundle"
	"xdao.co/szdt/storage/casregistry"
)

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("import", errOut)

	var backend string
	var bundlePath string
	var useConfig bool
	var listBackends bool
	var mode string
	var skew time.Duration

	fs.StringVar(&backend, "backend", "localfs", "CAS backend name")
	fs.BoolVar(&useConfig, "storage-config", false, "Open the backends listed under storage: in the config file")
	fs.StringVar(&bundlePath, "bundle", "", "Also write the imported blocks to a TAR bundle")
	fs.BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	addReadFlags(fs, &mode, &skew)
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if listBackends {
		for _, b := range casregistry.List(casregistry.UsageCLI) {
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt import <file> [--backend <name>] [backend flags]")
		return 2
	}
	e, err := c.env(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	opts, err := e.readOptions(mode, skew)
	if err != nil {
		fmt.Fprintf(errOut, "invalid options: %v\n", err)
		return 2
	}

	var cas storage.CAS
	var closeFn func() error
	if useConfig {
		if e.cfg.Storage == nil {
			fmt.Fprintln(errOut, "--storage-config: no storage section in config")
			return 2
		}
		preferred := ""
		if fs.Changed("backend") {
			preferred = backend
		}
		cas, closeFn, err = e.cfg.Storage.Open(casregistry.UsageCLI, preferred)
	} else {
		cas, closeFn, err = casregistry.Open(backend, casregistry.UsageCLI)
	}
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open archive: %v\n", err)
		return 1
	}
	defer f.Close()

	r, err := archive.NewReader(f, opts)
	if err != nil {
		fmt.Fprintf(errOut, "verify archive: %v\n", err)
		return 1
	}
	receipt, err := archive.ImportCAS(r, cas)
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, skipped := range receipt.Skipped {
		e.logger.Warn("resource not imported", "error", skipped)
	}

	fmt.Fprintf(out, "memo\t%s\n", receipt.Memo)
	fmt.Fprintf(out, "manifest\t%s\n", receipt.Manifest)
	for i, id := range receipt.Resources {
		if !id.Defined() {
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", r.Manifest().Resources[i].Path, id)
	}
	if bundlePath != "" {
		if err := writeBundle(bundlePath, cas, r.Manifest(), receipt); err != nil {
			fmt.Fprintf(errOut, "bundle: %v\n", err)
			return 1
		}
		e.logger.Debug("bundle written", "path", bundlePath)
	}
	if len(receipt.Skipped) > 0 {
		return 1
	}
	return 0
}

// writeBundle exports every stored block, labelled "memo", "manifest" or by
// resource path.
func writeBundle(path string, cas storage.CAS, m *archive.Manifest, receipt *archive.ImportReceipt) error {
	labels := map[string]cid.Cid{"memo": receipt.Memo, "manifest": receipt.Manifest}
	ids := []cid.Cid{receipt.Memo, receipt.Manifest}
	for i, id := range receipt.Resources {
		if !id.Defined() {
			continue
		}
		labels[m.Resources[i].Path] = id
		ids = append(ids, id)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	err = bundle.Export(f, cas, ids, bundle.ExportOptions{IncludeIndex: true, Labels: labels})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}
