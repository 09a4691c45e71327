package maildir

import (
	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

func init() {
	dmthedev.Register("maildir", func(config dmthedev.StoreConfig) (dmthedev.Store, error) {
		if config.BasePath == "" {
			return nil, errors.ErrStoreConfigInvalid
		}
		// maildir_subdir nests each recipient's maildir, e.g. "Maildir".
		return NewStore(config.BasePath, config.Option("maildir_subdir", ""), config.Logger), nil
	})
}
