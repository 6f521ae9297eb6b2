package main

import (
	"fmt"
	"io"
	"strings"

	"xdao.co/szdt/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "create":
		return cmdKeyCreate(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "delete":
		return cmdKeyDelete(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "szdt key: local keystore, one directory per nickname")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  szdt key create <nickname> [--seed-hex <64hex>]")
	fmt.Fprintln(w, "  szdt key derive <nickname> --role <role>")
	fmt.Fprintln(w, "  szdt key list")
	fmt.Fprintln(w, "  szdt key delete <nickname>")
}

func cmdKeyCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("key create", errOut)
	var seedHex string
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt key create <nickname>")
		return 2
	}
	nickname, ok := nicknameArg(fs.Arg(0), errOut)
	if !ok {
		return 2
	}
	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	}
	ks, code := c.keyStore(out, errOut)
	if ks == nil {
		return code
	}

	contact, err := ks.Create(nickname, seed)
	if err != nil {
		fmt.Fprintf(errOut, "create key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created key %s: %s\n", contact.Nickname, contact.DID)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("key derive", errOut)
	var role string
	fs.StringVar(&role, "role", "", "Role identifier (e.g. author, reviewer)")

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt key derive <nickname> --role <role>")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	nickname, ok := nicknameArg(fs.Arg(0), errOut)
	if !ok {
		return 2
	}
	ks, code := c.keyStore(out, errOut)
	if ks == nil {
		return code
	}

	key, err := ks.Derive(nickname, role)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Derived %s/%s: %s\n", nickname, role, key)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("key list", errOut)
	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: szdt key list")
		return 2
	}
	ks, code := c.keyStore(out, errOut)
	if ks == nil {
		return code
	}
	contacts, err := ks.Contacts()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, contact := range contacts {
		kind := "contact"
		if contact.HasPrivateKey {
			kind = "key"
		}
		line := fmt.Sprintf("%s\t%s\t%s", contact.Nickname, kind, contact.DID)
		if len(contact.Roles) > 0 {
			line += "\troles=" + strings.Join(contact.Roles, ",")
		}
		fmt.Fprintln(out, line)
	}
	return 0
}

func cmdKeyDelete(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("key delete", errOut)
	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt key delete <nickname>")
		return 2
	}
	nickname, ok := nicknameArg(fs.Arg(0), errOut)
	if !ok {
		return 2
	}
	ks, code := c.keyStore(out, errOut)
	if ks == nil {
		return code
	}
	if err := ks.Delete(nickname); err != nil {
		fmt.Fprintf(errOut, "delete key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Deleted %s\n", nickname)
	return 0
}

func cmdDID(args []string, out io.Writer, errOut io.Writer) int {
	fs, c := newFlagSet("did", errOut)
	var role string
	fs.StringVar(&role, "role", "", "Print the DID of a derived role key")

	if code, ok := parseExit(fs.Parse(args)); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: szdt did <nickname> [--role <role>]")
		return 2
	}
	nickname, ok := nicknameArg(fs.Arg(0), errOut)
	if !ok {
		return 2
	}
	ks, code := c.keyStore(out, errOut)
	if ks == nil {
		return code
	}

	if role != "" {
		signer, err := ks.RoleSigner(nickname, role)
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, signer.DID())
		return 0
	}
	contact, err := ks.Contact(nickname)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, contact.DID)
	return 0
}

// keyStore loads config and opens the keystore, reporting failures to
// errOut. A nil store comes with the exit code to return.
func (c *common) keyStore(out, errOut io.Writer) (*keys.KeyStore, int) {
	e, err := c.env(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return nil, 1
	}
	ks, err := e.keyStore()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, 1
	}
	return ks, 0
}

func nicknameArg(arg string, errOut io.Writer) (string, bool) {
	nickname, err := keys.ParseNickname(arg)
	if err != nil {
		fmt.Fprintf(errOut, "invalid nickname %q: %v\n", arg, err)
		return "", false
	}
	return nickname, true
}
