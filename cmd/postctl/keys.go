package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/postledger/keys"
)

func (g *globals) keyStore() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(g.keystore)
}

func newKeyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage local signing keys",
	}

	var overwrite bool
	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Generate a secp256k1 key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			addr, path, err := ks.Generate(args[0], overwrite)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{"name": args[0], "address": addr, "path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", addr, path)
			return nil
		},
	}
	newCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing key of the same name")

	var importOverwrite bool
	importCmd := &cobra.Command{
		Use:   "import <name> <hex-key>",
		Short: "Store an existing private key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			key, err := keys.ParsePrivateKeyHex(args[1])
			if err != nil {
				return err
			}
			addr, _, err := ks.Import(args[0], key, importOverwrite)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace an existing key of the same name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			entries, err := ks.ListKeys()
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Name, e.Address)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a key's address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			addr, err := ks.Address(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}

	cmd.AddCommand(newCmd, importCmd, listCmd, showCmd)
	return cmd
}
