package sqlite

import (
	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

func init() {
	dmthedev.Register("sqlite", func(config dmthedev.StoreConfig) (dmthedev.Store, error) {
		if config.BasePath == "" {
			return nil, errors.ErrStoreConfigInvalid
		}
		store, err := NewStore(config.BasePath, config.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}
