package localfs

import (
	"fmt"

	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys: []casregistry.Key{
			{Name: "localfs-dir", Help: "LocalFS CAS directory"},
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			dir := cfg["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing localfs-dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
