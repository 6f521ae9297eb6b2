package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"xdao.co/szdt/digest"
	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/bundle"
	"xdao.co/szdt/storage/casregistry"

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
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "has":
		return cmdHas(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
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
	fmt.Fprintln(w, "cascli: minimal CAS tool for walkthroughs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put --backend localfs --localfs-dir <dir> <file>")
	fmt.Fprintln(w, "  cascli get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cascli has --backend localfs --localfs-dir <dir> --cid <cid>")
	fmt.Fprintln(w, "  cascli export --backend localfs --localfs-dir <dir> --out <bundle.tar> [--label name=<cid> ...] <cid>...")
	fmt.Fprintln(w, "  cascli import --backend localfs --localfs-dir <dir> <bundle.tar>")
	fmt.Fprintln(w, "  cascli put --backend grpc --grpc-target <host:port> <file>")
	fmt.Fprintln(w, "  cascli put --backend ipfs [--ipfs-path <repo>] <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - blocks are named CIDv1 raw + blake3; get/has accept any blake3 CID")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - grpc backend talks to szdt-casd (or any CAS gRPC server)")
}

type commonFlags struct {
	backend      string
	listBackends bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	return casregistry.Open(c.backend, casregistry.UsageCLI)
}

func newFlagSet(name string, errOut io.Writer) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	common := &commonFlags{}
	common.add(fs)
	return fs, common
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// withCAS parses flags, handles --list-backends and opens the backend. A nil
// CAS comes with the exit code to return.
func withCAS(fs *pflag.FlagSet, common *commonFlags, args []string, out, errOut io.Writer) (storage.CAS, func(), int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil, 0
		}
		return nil, nil, 2
	}
	if common.listBackends {
		printBackends(out)
		return nil, nil, 0
	}
	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, 1
	}
	return cas, func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}, 0
}

func parseCID(s string) (cid.Cid, error) {
	_, id, err := digest.ParseCID(s)
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("put", errOut)
	cas, done, code := withCAS(fs, common, args, out, errOut)
	if cas == nil {
		return code
	}
	defer done()
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli put [common flags] <file>")
		return 2
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("get", errOut)
	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	cas, done, code := withCAS(fs, common, args, out, errOut)
	if cas == nil {
		return code
	}
	defer done()
	if cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli get [common flags] --cid <cid> [--out <file>]")
		return 2
	}

	id, err := parseCID(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdHas(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("has", errOut)
	var cidStr string
	fs.StringVar(&cidStr, "cid", "", "CID to look up")

	cas, done, code := withCAS(fs, common, args, out, errOut)
	if cas == nil {
		return code
	}
	defer done()
	if cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli has [common flags] --cid <cid>")
		return 2
	}

	id, err := parseCID(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if !cas.Has(id) {
		_, _ = fmt.Fprintln(out, "absent")
		return 1
	}
	_, _ = fmt.Fprintln(out, "present")
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("export", errOut)
	var outPath string
	var labelArgs map[string]string
	fs.StringVar(&outPath, "out", "", "Bundle file to write")
	fs.StringToStringVar(&labelArgs, "label", nil, "Index label name=<cid> (repeatable)")

	cas, done, code := withCAS(fs, common, args, out, errOut)
	if cas == nil {
		return code
	}
	defer done()
	if outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: cascli export [common flags] --out <bundle.tar> [--label name=<cid> ...] <cid>...")
		return 2
	}

	ids := make([]cid.Cid, 0, fs.NArg())
	for _, s := range fs.Args() {
		id, err := parseCID(s)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", s, err)
			return 1
		}
		ids = append(ids, id)
	}
	labels := make(map[string]cid.Cid, len(labelArgs))
	for name, s := range labelArgs {
		id, err := parseCID(s)
		if err != nil {
			fmt.Fprintf(errOut, "label %s: %v\n", name, err)
			return 1
		}
		labels[name] = id
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	err = bundle.Export(f, cas, ids, bundle.ExportOptions{IncludeIndex: true, Labels: labels})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("import", errOut)
	var ignoreUnknown bool
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown bundle entries")

	cas, done, code := withCAS(fs, common, args, out, errOut)
	if cas == nil {
		return code
	}
	defer done()
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli import [common flags] <bundle.tar>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	idx, err := bundle.ImportWithOptions(f, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if idx == nil {
		return 0
	}
	names := make([]string, 0, len(idx.Labels))
	for name := range idx.Labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", name, idx.Labels[name])
	}
	return 0
}
