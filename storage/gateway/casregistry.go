package gateway

import (
	"strconv"
	"time"

	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "gateway",
		Description: "IPFS HTTP gateway (read-only, raw blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys: []casregistry.Key{
			{Name: "gateway-url", Help: "Gateway base URL, e.g. https://ipfs.io"},
			{Name: "gateway-timeout", Default: "5s", Help: "Per-request timeout"},
			{Name: "gateway-max-bytes", Default: strconv.Itoa(DefaultMaxBytes), Help: "Maximum block size"},
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			timeout, err := time.ParseDuration(cfg["gateway-timeout"])
			if err != nil {
				return nil, nil, err
			}
			maxBytes, err := strconv.ParseInt(cfg["gateway-max-bytes"], 10, 64)
			if err != nil {
				return nil, nil, err
			}
			cas, err := New(Options{BaseURL: cfg["gateway-url"], Timeout: timeout, MaxBytes: maxBytes})
			return cas, nil, err
		},
	})
}
