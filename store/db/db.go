package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/db/badgerdb"
	"github.com/hrygo/cinesense/store/db/memory"
	"github.com/hrygo/cinesense/store/db/postgres"
	"github.com/hrygo/cinesense/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "memory":
		driver = memory.NewDB()
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "badger":
		driver, err = badgerdb.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
