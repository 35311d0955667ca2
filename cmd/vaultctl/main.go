// Command vaultctl creates vaults on a vaultd server and edits their
// entries. Vaults are encrypted and decrypted locally.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/howeyc/gopass"
	"github.com/rs/zerolog"

	"github.com/vetsin/code-jam-2025/internal/client"
	"github.com/vetsin/code-jam-2025/internal/platform"
)

const defaultServer = "http://127.0.0.1:8080"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	_ = platform.DisableCoreDumps()

	credsPath, err := client.DefaultCredentialsPath()
	dieIf(err)

	a := &app{
		out:       os.Stdout,
		credsPath: credsPath,
		server:    os.Getenv("VAULTCTL_SERVER"),
		prompt:    promptSecret,
		logger:    zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel),
	}
	if a.server == "" {
		a.server = defaultServer
	}

	if err := a.run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		dieIf(err)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `vaultctl commands:

  create         [--id ID] [--server URL]
  show           [--vault ID] [--entry NAME|ID]
  set            [--vault ID] --entry NAME --key KEY --value VALUE|gen:N
  unset          [--vault ID] --entry NAME|ID --key KEY
  rm-entry       [--vault ID] --entry NAME|ID
  hash-password  print an admin.password_hash for vaultd

Common flags:
  --credentials PATH   saved vault secrets (default ~/.config/vaultctl/credentials.json)
  --v                  verbose logging

Examples:
  vaultctl create --id alice
  vaultctl set --entry mail --key password --value gen:20
  vaultctl show --entry mail
`)
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	return gopass.GetPasswd()
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
