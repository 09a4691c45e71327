package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/codec"
	"github.com/TrendsAI-bit/dmthedev/errors"
	"github.com/TrendsAI-bit/dmthedev/keystore"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage published encryption keys",
	}

	var wallet, passphraseFile string
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Derive the wallet's encryption key and register its public half",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := unlockWallet(a, wallet, passphraseFile)
			if err != nil {
				return err
			}
			m, store, err := a.openMessenger()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, err := m.Publish(cmd.Context(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
				rec.WalletAddress, rec.Format, errors.Fingerprint(rec.PublicKey))
			return nil
		},
	}
	publishCmd.Flags().StringVar(&wallet, "wallet", "", "keystore wallet name")
	publishCmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "read the keystore passphrase from this file")
	_ = publishCmd.MarkFlagRequired("wallet")

	cmd.AddCommand(publishCmd)
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var from, wallet, to string
	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Seal a message for a wallet address",
		Long:  "Seal a message for a wallet address. Without a text argument the message is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender := from
			if wallet != "" {
				ks, err := keystore.New(a.cfg.Keystore.Dir)
				if err != nil {
					return err
				}
				if sender, err = ks.Address(wallet); err != nil {
					return err
				}
			}
			if sender == "" {
				return fmt.Errorf("either --from or --wallet is required")
			}

			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read message: %w", err)
				}
				text = string(data)
			}
			if !utf8.ValidString(text) {
				return fmt.Errorf("message text: %w", errors.ErrInvalidPlaintext)
			}

			m, store, err := a.openMessenger()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msg, err := m.Send(cmd.Context(), sender, to, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender wallet address")
	cmd.Flags().StringVar(&wallet, "wallet", "", "keystore wallet to send as")
	cmd.Flags().StringVar(&to, "to", "", "recipient wallet address")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newInboxCmd(a *app) *cobra.Command {
	var wallet, passphraseFile string
	var raw bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Decrypt and print messages for a wallet, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := unlockWallet(a, wallet, passphraseFile)
			if err != nil {
				return err
			}
			m, store, err := a.openMessenger()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if raw {
				return printRaw(cmd, m, store, w)
			}

			inbox, err := m.Inbox(cmd.Context(), w)
			if err != nil {
				return err
			}
			for _, r := range inbox {
				printReceived(out, r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "keystore wallet name")
	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "read the keystore passphrase from this file")
	cmd.Flags().BoolVar(&raw, "raw", false, "print undecoded plaintext bytes")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func printReceived(out io.Writer, r dmthedev.Received) {
	when := r.Message.CreatedAt.Local().Format("2006-01-02 15:04:05")
	if r.Err != nil {
		fmt.Fprintf(out, "%s  %s  %s\n    %s\n", when, r.Message.ID, r.Message.SenderAddress, r.Text())
		return
	}
	kind := ""
	if r.Decoded.Kind != codec.KindVersioned {
		kind = " (" + r.Decoded.Kind.String() + ")"
	}
	fmt.Fprintf(out, "%s  %s  %s%s\n", when, r.Message.ID, r.Message.SenderAddress, kind)
	for _, line := range strings.Split(r.Decoded.Text, "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
}

func printRaw(cmd *cobra.Command, m *dmthedev.Messenger, store dmthedev.Store, w dmthedev.Wallet) error {
	ctx := cmd.Context()
	session, err := m.OpenSession(ctx, w)
	if err != nil {
		return err
	}
	defer session.Clear()

	msgs, err := store.ListFor(ctx, session.Address)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, msg := range msgs {
		plaintext, err := session.Open(msg)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", msg.ID, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", msg.ID, plaintext)
	}
	return nil
}
