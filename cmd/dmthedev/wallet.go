package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/TrendsAI-bit/dmthedev/keystore"
	"github.com/TrendsAI-bit/dmthedev/signer"
)

// EnvPassphrase supplies the keystore passphrase without a prompt.
const EnvPassphrase = "DMTHEDEV_PASSPHRASE"

func newWalletCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage local wallet keys",
	}

	var scheme, passphraseFile string
	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Generate a wallet and store it in the keystore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.New(a.cfg.Keystore.Dir)
			if err != nil {
				return err
			}
			passphrase, err := readPassphrase(passphraseFile, true)
			if err != nil {
				return err
			}
			w, err := ks.Create(args[0], scheme, passphrase)
			if err != nil {
				return err
			}
			a.logger.Info("wallet created",
				zap.String("name", args[0]),
				zap.String("scheme", w.Scheme()))
			fmt.Fprintln(cmd.OutOrStdout(), w.Address())
			return nil
		},
	}
	newCmd.Flags().StringVar(&scheme, "scheme", signer.SchemeEd25519, "signature scheme: ed25519 or secp256k1")
	newCmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "read the keystore passphrase from this file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List wallets in the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.New(a.cfg.Keystore.Dir)
			if err != nil {
				return err
			}
			entries, err := ks.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Name, e.Address)
			}
			return nil
		},
	}

	cmd.AddCommand(newCmd, listCmd)
	return cmd
}

// unlockWallet opens a named keystore wallet and wraps it so concurrent
// signing requests never stack prompts.
func unlockWallet(a *app, name, passphraseFile string) (*signer.Exclusive, error) {
	ks, err := keystore.New(a.cfg.Keystore.Dir)
	if err != nil {
		return nil, err
	}
	passphrase, err := readPassphrase(passphraseFile, false)
	if err != nil {
		return nil, err
	}
	w, err := ks.Unlock(name, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet %s: %w", name, err)
	}
	return signer.NewExclusive(w, signer.WithPromptInterval(a.cfg.Signer.PromptInterval)), nil
}

// readPassphrase takes the passphrase from a file, then the environment,
// then an interactive prompt.
func readPassphrase(file string, confirm bool) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read passphrase file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	if p, ok := os.LookupEnv(EnvPassphrase); ok {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no passphrase: set %s or use --passphrase-file", EnvPassphrase)
	}
	p, err := promptPassphrase(fd, "Passphrase: ")
	if err != nil {
		return "", err
	}
	if confirm {
		again, err := promptPassphrase(fd, "Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if again != p {
			return "", fmt.Errorf("passphrases do not match")
		}
	}
	return p, nil
}

func promptPassphrase(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}
