package ipfs

import (
	"os"
	"strconv"

	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Kubo CLI CAS (raw blocks in the local IPFS repo)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys: []casregistry.Key{
			{Name: "ipfs-bin", Default: "ipfs", Help: "Path to the ipfs binary"},
			{Name: "ipfs-path", Help: "IPFS_PATH for the ipfs binary (empty uses the process environment)"},
			{Name: "ipfs-pin", Default: "false", Help: "Pin blocks on put"},
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			pin, err := strconv.ParseBool(cfg["ipfs-pin"])
			if err != nil {
				return nil, nil, err
			}
			var env []string
			if p := cfg["ipfs-path"]; p != "" {
				env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(Options{Bin: cfg["ipfs-bin"], Env: env, Pin: pin}), nil, nil
		},
	})
}
