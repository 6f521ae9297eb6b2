package main

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/codec"
	"xdao.co/szdt/digest"
	"xdao.co/szdt/keys"
	"xdao.co/szdt/memo"
)

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("archive", errOut)

	var nickname string
	var role string
	var output string
	var expires time.Duration
	var prev string

	fs.StringVar(&nickname, "sign", "", "Nickname of the signing key")
	fs.StringVar(&role, "role", "", "Sign with a derived role key instead of the root key")
	fs.StringVarP(&output, "output", "o", "", "Output file (default <dir>.szdt)")
	fs.DurationVar(&expires, "expires", 0, "Validity period; 0 means no expiry")
	fs.StringVar(&prev, "prev", "", "Digest of the memo this archive supersedes")

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt archive <dir> --sign <nickname>")
		return 2
	}
	if nickname == "" {
		fmt.Fprintln(errOut, "missing --sign")
		return 2
	}
	e, err := c.env(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}

	dir := filepath.Clean(fs.Arg(0))
	if output == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			fmt.Fprintf(errOut, "archive: %v\n", err)
			return 1
		}
		output = filepath.Base(abs) + codec.ArchiveExtension
	}

	opts := archive.Options{Now: time.Now()}
	if expires > 0 {
		opts.Expires = opts.Now.Add(expires)
	}
	if prev != "" {
		d, err := digest.Parse(prev)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --prev: %v\n", err)
			return 2
		}
		opts.Prev = &d
	}

	ks, err := e.keyStore()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	nickname, err = keys.ParseNickname(nickname)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --sign: %v\n", err)
		return 2
	}
	signer, err := loadSigner(ks, nickname, role)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	opts.Nickname = nickname

	entries, err := collectEntries(dir, output, e)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}

	receipt, err := writeArchive(output, signer, entries, opts)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	e.logger.Debug("archive written", "path", output, "resources", len(receipt.Manifest.Resources), "bytes", receipt.Size)

	fmt.Fprintf(out, "Wrote %s (%d resources, %d bytes)\n", output, len(receipt.Manifest.Resources), receipt.Size)
	fmt.Fprintf(out, "Issuer: %s\n", receipt.Memo.Protected.Issuer)
	fmt.Fprintf(out, "Memo: %s\n", receipt.MemoDigest)
	return 0
}

func loadSigner(ks *keys.KeyStore, nickname, role string) (*memo.Ed25519Signer, error) {
	if role == "" {
		return ks.Signer(nickname)
	}
	return ks.RoleSigner(nickname, role)
}

// collectEntries walks dir in lexical order. Paths are rooted at dir, so
// dir/a/b.txt becomes /a/b.txt. Only regular files are archived.
func collectEntries(dir, output string, e *env) ([]archive.Entry, error) {
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return nil, err
	}
	var entries []archive.Entry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			e.logger.Warn("skipping non-regular file", "path", path)
			return nil
		}
		if abs, err := filepath.Abs(path); err == nil && abs == outAbs {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, archive.Entry{
			Path:        "/" + filepath.ToSlash(rel),
			Body:        body,
			ContentType: contentType(path),
		})
		e.logger.Debug("adding file", "path", path, "bytes", len(body))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: no files to archive", dir)
	}
	return entries, nil
}

// contentType guesses a media type from the file extension, dropping
// parameters such as charset.
func contentType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func writeArchive(path string, signer memo.Signer, entries []archive.Entry, opts archive.Options) (*archive.Receipt, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	receipt, err := archive.Write(f, signer, entries, opts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return receipt, nil
}
