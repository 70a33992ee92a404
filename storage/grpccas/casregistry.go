package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a CAS gRPC daemon, e.g. casgrpcd)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys: []casregistry.Key{
			{Name: "grpc-target", Help: "gRPC target host:port"},
			{Name: "grpc-timeout", Default: "0s", Help: "Per-RPC timeout; 0 relies on the caller's deadline"},
			{Name: "grpc-max-msg-bytes", Default: "0", Help: "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg["grpc-target"])
			if target == "" {
				return nil, nil, fmt.Errorf("missing grpc-target")
			}
			timeout, err := time.ParseDuration(cfg["grpc-timeout"])
			if err != nil {
				return nil, nil, err
			}
			maxMsg, err := strconv.Atoi(cfg["grpc-max-msg-bytes"])
			if err != nil {
				return nil, nil, err
			}
			client, err := Dial(target, DialOptions{MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
