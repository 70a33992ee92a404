// Command postctl is the client-side companion to postd: it manages signing
// keys, computes content handles, produces signed createPost requests and
// moves content bodies between CAS backends.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	keystore   string
	jsonOutput bool
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "postctl",
		Short:         "Keys, handles and signed requests for postledger",
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&g.keystore, "keystore", "", "Key directory (default ~/.postledger/keys)")
	root.PersistentFlags().BoolVarP(&g.jsonOutput, "json", "j", false, "Output as JSON")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "postctl %s\n", version)
		},
	})
	root.AddCommand(newKeyCmd(g), newHandleCmd(g), newSignCmd(g), newVerifyCmd(g), newBundleCmd(g))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads the named file, or stdin for "" and "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
