package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"xdao.co/postledger/config"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/bundle"
	"xdao.co/postledger/storage/casregistry"

	_ "xdao.co/postledger/storage/gateway"
	_ "xdao.co/postledger/storage/grpccas"
	_ "xdao.co/postledger/storage/ipfs"
	_ "xdao.co/postledger/storage/localfs"
)

func newBundleCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export or import content bodies as a TAR archive",
	}
	cmd.AddCommand(newBundleExportCmd(g), newBundleImportCmd(g))
	return cmd
}

func openComponents(ctx context.Context, path string) (*config.Components, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.Open(ctx, cfg, zerolog.Nop())
}

func newBundleExportCmd(g *globals) *cobra.Command {
	var configPath, owner, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every body an owner's ledger index names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !keys.IsAddress(owner) {
				return fmt.Errorf("invalid owner address %q", owner)
			}
			ctx := cmd.Context()
			comp, err := openComponents(ctx, configPath)
			if err != nil {
				return err
			}
			defer comp.Close()

			entries, err := comp.Ledger.Query(ctx, keys.NormalizeAddress(owner))
			if err != nil {
				return err
			}
			handles := make([]string, 0, len(entries))
			for _, e := range entries {
				handles = append(handles, e.Handle)
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, ferr := os.Create(outPath)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			if err := bundle.Export(ctx, w, comp.CAS, handles, bundle.ExportOptions{
				Owner:   keys.NormalizeAddress(owner),
				Entries: entries,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries for %s\n", len(entries), keys.NormalizeAddress(owner))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "postd YAML config (ledger and CAS)")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner address")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newBundleImportCmd(g *globals) *cobra.Command {
	var configPath, backend string
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Store an archive's bodies in a CAS",
		Long: `Import verifies every block against its CID and writes it to the CAS
named by --config, or to the backend selected with --cas-backend and its
flags.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var cas storage.CAS
			switch {
			case configPath != "":
				comp, err := openComponents(ctx, configPath)
				if err != nil {
					return err
				}
				defer comp.Close()
				cas = comp.CAS
			case backend != "":
				c, closeFn, err := casregistry.Open(backend, casregistry.UsageCLI, cmd.Flags())
				if err != nil {
					return err
				}
				if closeFn != nil {
					defer closeFn()
				}
				cas = c
			default:
				return errors.New("one of --config or --cas-backend is required")
			}

			var r io.Reader = cmd.InOrStdin()
			if p := firstArg(args); p != "" && p != "-" {
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			m, n, err := bundle.Import(ctx, r, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"blocks": n, "manifest": m})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d blocks\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "postd YAML config (CAS section)")
	cmd.Flags().StringVar(&backend, "cas-backend", "", "CAS backend when no config is given")
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip entries that are not blocks")
	casregistry.RegisterFlags(cmd.Flags(), casregistry.UsageCLI)
	return cmd
}
