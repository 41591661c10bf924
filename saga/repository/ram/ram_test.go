package ram_test

import (
	"testing"

	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository/ram"
	"github.com/shortlink-org/commandbus/saga/repository/repositorytest"
)

func TestStore(t *testing.T) {
	repositorytest.Run(t, func(*testing.T) saga.Repository {
		return ram.New()
	})
}
