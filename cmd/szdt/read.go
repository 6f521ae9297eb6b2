package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/codec"
	"xdao.co/szdt/did"
	"xdao.co/szdt/keys"
	"xdao.co/szdt/memo"
)

func cmdUnarchive(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("unarchive", errOut)

	var dir string
	var mode string
	var skew time.Duration

	fs.StringVar(&dir, "dir", "", "Output directory (default: archive name without extension)")
	addReadFlags(fs, &mode, &skew)

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt unarchive <file> [--dir <dir>]")
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

	path := fs.Arg(0)
	if dir == "" {
		dir = strings.TrimSuffix(filepath.Base(path), codec.ArchiveExtension)
	}

	f, err := os.Open(path)
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

	contact, err := e.rememberIssuer(r.Memo())
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(errOut, "unarchive: %v\n", err)
		return 1
	}
	written, skipped := 0, 0
	for {
		res, body, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if opts.Mode == archive.Permissive && archive.IsKind(err, archive.KindContentMismatch) {
				e.logger.Warn("skipping resource", "path", res.Path, "error", err)
				skipped++
				continue
			}
			fmt.Fprintf(errOut, "unarchive: %v\n", err)
			return 1
		}
		if err := writeResource(dir, res.Path, body); err != nil {
			fmt.Fprintf(errOut, "unarchive: %v\n", err)
			return 1
		}
		written++
	}

	fmt.Fprintf(out, "Unpacked %d resources into %s\n", written, dir)
	fmt.Fprintf(out, "Signed by: %s (%s)\n", contact.Nickname, contact.DID)
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped %d resources that failed verification\n", skipped)
		return 1
	}
	return 0
}

// writeResource places body at dir/p. Manifest paths have already been
// checked to stay under the root.
func writeResource(dir, p string, body []byte) error {
	dst := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, body, 0o644)
}

// rememberIssuer returns the contact for the memo's issuer, adding one
// under the issuer's suggested nickname if the key is new.
func (e *env) rememberIssuer(m *memo.Memo) (keys.Contact, error) {
	key, err := did.Parse(m.Protected.Issuer)
	if err != nil {
		return keys.Contact{}, err
	}
	ks, err := e.keyStore()
	if err != nil {
		return keys.Contact{}, err
	}
	contact, err := ks.ContactForDID(key)
	if err == nil || !errors.Is(err, keys.ErrNotFound) {
		return contact, err
	}
	nickname, err := ks.UniqueNickname(m.Protected.IssuerNickname)
	if err != nil {
		return keys.Contact{}, err
	}
	contact, err = ks.AddContact(nickname, key)
	if err != nil {
		return keys.Contact{}, err
	}
	e.logger.Info("added contact", "nickname", contact.Nickname, "did", contact.DID.String())
	return contact, nil
}

func cmdList(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("list", errOut)
	var mode string
	var skew time.Duration
	addReadFlags(fs, &mode, &skew)

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt list <file>")
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

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open archive: %v\n", err)
		return 1
	}
	defer f.Close()

	x, err := archive.OpenAt(f, opts)
	if err != nil {
		fmt.Fprintf(errOut, "verify archive: %v\n", err)
		return 1
	}

	p := x.Memo().Protected
	fmt.Fprintf(out, "Issuer: %s\n", p.Issuer)
	if p.IssuerNickname != "" {
		fmt.Fprintf(out, "Nickname: %s\n", p.IssuerNickname)
	}
	fmt.Fprintf(out, "Issued: %s\n", time.Unix(int64(p.IssuedAt), 0).UTC().Format(time.RFC3339))
	if p.Expires != nil {
		fmt.Fprintf(out, "Expires: %s\n", time.Unix(int64(*p.Expires), 0).UTC().Format(time.RFC3339))
	}
	if p.Prev != nil {
		fmt.Fprintf(out, "Supersedes: %s\n", p.Prev)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tOFFSET\tLENGTH\tTYPE\tDIGEST")
	for i, res := range x.Manifest().Resources {
		rng := x.Ranges()[i]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", res.Path, rng.Offset, rng.Length, res.ContentType, res.Src)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(errOut, "list: %v\n", err)
		return 1
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("verify", errOut)
	var mode string
	var skew time.Duration
	addReadFlags(fs, &mode, &skew)

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt verify <file>")
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

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open archive: %v\n", err)
		return 1
	}
	defer f.Close()

	r, err := archive.NewReader(f, opts)
	if err != nil {
		fmt.Fprintf(out, "FAIL header: %v\n", err)
		return 1
	}

	ok, failed := 0, 0
	for {
		res, _, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, err)
			failed++
			if opts.Mode == archive.Strict || !archive.IsKind(err, archive.KindContentMismatch) {
				break
			}
			continue
		}
		ok++
	}

	memoDigest := r.MemoDigest()
	fmt.Fprintf(out, "Memo: %s\n", memoDigest)
	fmt.Fprintf(out, "Issuer: %s\n", r.Memo().Protected.Issuer)
	fmt.Fprintf(out, "%d of %d resources verified\n", ok, len(r.Manifest().Resources))
	if failed > 0 {
		return 1
	}
	return 0
}
