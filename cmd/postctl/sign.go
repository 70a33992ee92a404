package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"xdao.co/postledger/keys"
	"xdao.co/postledger/model"
)

func newHandleCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "handle [file]",
		Short: "Print the content handle of a JSON body",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, firstArg(args))
			if err != nil {
				return err
			}
			handle, canonical, err := model.HandleOf(raw)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"handle":  handle,
					"message": model.CommitMessage(handle),
					"body":    json.RawMessage(canonical),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), handle)
			return nil
		},
	}
}

// signedRequest is the createPost request body.
type signedRequest struct {
	Content   json.RawMessage `json:"content"`
	Signature string          `json:"signature"`
	Address   string          `json:"address"`
}

func newSignCmd(g *globals) *cobra.Command {
	var keyName, keyHex, keyFile string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign a JSON body and print a createPost request",
		Long: `Sign computes the body's handle, signs the commit message for it
and prints the JSON request postd's POST /api/createPost expects.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			key, err := ks.LoadSigner(keyHex, keyName, keyFile)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, firstArg(args))
			if err != nil {
				return err
			}
			handle, canonical, err := model.HandleOf(raw)
			if err != nil {
				return err
			}
			sig, err := keys.SignPersonalMessage([]byte(model.CommitMessage(handle)), key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), signedRequest{
				Content:   canonical,
				Signature: hexutil.Encode(sig),
				Address:   keys.AddressOf(key),
			})
		},
	}
	cmd.Flags().StringVar(&keyName, "key", "", "Name of a stored key")
	cmd.Flags().StringVar(&keyHex, "key-hex", "", "Private key as hex")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "File holding a hex private key")
	return cmd
}

func newVerifyCmd(g *globals) *cobra.Command {
	var handle, signature, address string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a signature authorizes a handle for an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := keys.NewVerifier().VerifyHex([]byte(model.CommitMessage(handle)), signature, address)
			if g.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), map[string]bool{"valid": ok}); err != nil {
					return err
				}
			} else if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
			}
			if !ok {
				return errors.New("signature does not authorize this handle for this address")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "Content handle")
	cmd.Flags().StringVar(&signature, "signature", "", "0x-prefixed 65-byte signature")
	cmd.Flags().StringVar(&address, "address", "", "Claimed owner address")
	for _, name := range []string{"handle", "signature", "address"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
