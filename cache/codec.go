package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/postledger/model"
)

// Cache values are CBOR. Times keep nanosecond precision so a round trip
// through the cache compares equal to the ledger's timestamps.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func EncodeItem(it model.Item) ([]byte, error) {
	return encMode.Marshal(it)
}

func DecodeItem(b []byte) (model.Item, error) {
	var it model.Item
	if err := decMode.Unmarshal(b, &it); err != nil {
		return model.Item{}, fmt.Errorf("decode cached item: %w", err)
	}
	if it.Handle == "" {
		return model.Item{}, fmt.Errorf("decode cached item: missing handle")
	}
	return it, nil
}

// List is a resolved owner list tagged with the generation it was built
// under (see PostsGenKey).
type List struct {
	Generation string       `cbor:"1,keyasint"`
	Items      []model.Item `cbor:"2,keyasint"`
}

func EncodeList(generation string, items []model.Item) ([]byte, error) {
	if items == nil {
		items = []model.Item{}
	}
	return encMode.Marshal(List{Generation: generation, Items: items})
}

func DecodeList(b []byte) (List, error) {
	var l List
	if err := decMode.Unmarshal(b, &l); err != nil {
		return List{}, fmt.Errorf("decode cached list: %w", err)
	}
	if l.Items == nil {
		return List{}, fmt.Errorf("decode cached list: not a list")
	}
	return l, nil
}
