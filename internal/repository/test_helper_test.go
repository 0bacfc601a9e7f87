package repository

import (
	"testing"

	"github.com/nimasrn/congregation-messenger/internal/store"
	"github.com/nimasrn/congregation-messenger/internal/store/storetest"
)

func setupTestStore(t *testing.T) store.Store {
	return store.NewGormStore(storetest.OpenDB(t, store.Models()...), store.NewLocalFeed())
}
