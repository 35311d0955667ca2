package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetsin/code-jam-2025/internal/auth"
	"github.com/vetsin/code-jam-2025/internal/client"
	"github.com/vetsin/code-jam-2025/internal/crypto"
	"github.com/vetsin/code-jam-2025/internal/session"
	"github.com/vetsin/code-jam-2025/internal/vault"
)

type app struct {
	out       io.Writer
	credsPath string
	server    string
	prompt    func(string) ([]byte, error)
	logger    zerolog.Logger
}

type common struct {
	credsPath *string
	server    *string
	vaultID   *string
	verbose   *bool
}

func (a *app) flags(name string) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, common{
		credsPath: fs.String("credentials", a.credsPath, "credentials file"),
		server:    fs.String("server", a.server, "vaultd base URL"),
		vaultID:   fs.String("vault", "", "vault id (default: first created)"),
		verbose:   fs.Bool("v", false, "verbose logging"),
	}
}

func (a *app) apply(c common) {
	a.credsPath = *c.credsPath
	a.server = *c.server
	if *c.verbose {
		a.logger = a.logger.Level(zerolog.DebugLevel)
	}
}

func (a *app) run(cmd string, args []string) error {
	switch cmd {
	case "create":
		return a.cmdCreate(args)
	case "show":
		return a.cmdShow(args)
	case "set":
		return a.cmdSet(args)
	case "unset":
		return a.cmdUnset(args)
	case "rm-entry":
		return a.cmdRmEntry(args)
	case "hash-password":
		return a.cmdHashPassword(args)
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	default:
		usage(a.out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) client(server string) (*client.Client, error) {
	if server == "" {
		server = a.server
	}
	return client.New(server, client.WithLogger(a.logger))
}

func (a *app) cmdCreate(args []string) error {
	fs, c := a.flags("create")
	id := fs.String("id", "", "vault id (default: server-chosen)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.apply(c)

	creds, err := client.LoadCredentials(a.credsPath)
	if err != nil {
		return err
	}
	cl, err := a.client("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var resp *client.CreateResponse
	if *id == "" {
		resp, err = cl.CreateRandom(ctx)
	} else {
		resp, err = cl.Create(ctx, *id)
	}
	if err != nil {
		return err
	}

	creds.Put(session.Credential{VaultID: resp.ID, Secret: resp.Secret, Server: a.server})
	if err := creds.Save(a.credsPath); err != nil {
		return fmt.Errorf("vault %s created but its secret could not be saved: %w", resp.ID, err)
	}
	fmt.Fprintln(a.out, "Vault created:", resp.ID)
	fmt.Fprintln(a.out, "Secret saved to", a.credsPath, "(it cannot be recovered from the server)")
	return nil
}

// unlock loads the credential for vaultID, prompts for the passcode and
// opens the vault.
func (a *app) unlock(ctx context.Context, vaultID string) (*client.Session, *vault.Vault, error) {
	creds, err := client.LoadCredentials(a.credsPath)
	if err != nil {
		return nil, nil, err
	}
	cred, err := creds.Get(vaultID)
	if err != nil {
		return nil, nil, err
	}
	cl, err := a.client(cred.Server)
	if err != nil {
		return nil, nil, err
	}

	passcode, err := a.prompt("Passcode: ")
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(passcode)

	s := client.NewSession(cl, nil)
	v, err := s.Unlock(ctx, cred, passcode)
	if client.IsWrongPasscode(err) {
		return nil, nil, errors.New("wrong passcode")
	}
	if err != nil {
		return nil, nil, err
	}
	return s, v, nil
}

func (a *app) cmdShow(args []string) error {
	fs, c := a.flags("show")
	ref := fs.String("entry", "", "only this entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.apply(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, v, err := a.unlock(ctx, *c.vaultID)
	if err != nil {
		return err
	}
	defer s.Lock()

	var out any = v.Entries
	if *ref != "" {
		e, ok := v.Entry(*ref)
		if !ok {
			return fmt.Errorf("%w: %s", vault.ErrEntryNotFound, *ref)
		}
		out = e
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(a.out, string(b))
	return nil
}

// edit unlocks, applies fn and saves the result.
func (a *app) edit(vaultID string, fn func(*vault.Vault) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, v, err := a.unlock(ctx, vaultID)
	if err != nil {
		return err
	}
	defer s.Lock()
	if err := fn(v); err != nil {
		return err
	}
	return s.Save(ctx, v)
}

func (a *app) cmdSet(args []string) error {
	fs, c := a.flags("set")
	ref := fs.String("entry", "", "entry name or id")
	key := fs.String("key", "", "key")
	value := fs.String("value", "", "value, or gen:N to generate N characters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.apply(c)
	if *ref == "" || *key == "" || *value == "" {
		return errors.New("--entry, --key and --value required")
	}
	val, err := expandValue(*value)
	if err != nil {
		return err
	}

	return a.edit(*c.vaultID, func(v *vault.Vault) error {
		e, ok := v.Entry(*ref)
		if !ok {
			e = v.NewEntry(*ref, *key, val)
			fmt.Fprintln(a.out, "Added entry:", e.ID)
			return nil
		}
		e.Set(*key, val)
		fmt.Fprintln(a.out, "Updated entry:", e.ID)
		return nil
	})
}

func (a *app) cmdUnset(args []string) error {
	fs, c := a.flags("unset")
	ref := fs.String("entry", "", "entry name or id")
	key := fs.String("key", "", "key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.apply(c)
	if *ref == "" || *key == "" {
		return errors.New("--entry and --key required")
	}

	return a.edit(*c.vaultID, func(v *vault.Vault) error {
		e, ok := v.Entry(*ref)
		if !ok {
			return fmt.Errorf("%w: %s", vault.ErrEntryNotFound, *ref)
		}
		if !e.Unset(*key) {
			return fmt.Errorf("entry %s has no key %q", *ref, *key)
		}
		return nil
	})
}

func (a *app) cmdRmEntry(args []string) error {
	fs, c := a.flags("rm-entry")
	ref := fs.String("entry", "", "entry name or id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.apply(c)
	if *ref == "" {
		return errors.New("--entry required")
	}
	return a.edit(*c.vaultID, func(v *vault.Vault) error {
		return v.DeleteEntry(*ref)
	})
}

func (a *app) cmdHashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := a.prompt("Admin password: ")
	if err != nil {
		return err
	}
	defer crypto.Zero(pw)
	again, err := a.prompt("Repeat: ")
	if err != nil {
		return err
	}
	defer crypto.Zero(again)
	if !bytes.Equal(pw, again) {
		return errors.New("passwords do not match")
	}

	hash, err := auth.HashPassword(auth.DefaultArgon, string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}
