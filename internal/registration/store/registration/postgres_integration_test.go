//go:build integration

package registration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"feria/internal/platform/database"
	"feria/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	StoreContractSuite
	db *sqlx.DB
}

func TestPostgresStoreSuite(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	db := sqlx.NewDb(pg.DB, "postgres")
	require.NoError(t, database.Migrate(context.Background(), db))

	s := &PostgresStoreSuite{db: db}
	s.newStore = func() recordStore {
		_, err := db.Exec(`TRUNCATE registros_feria RESTART IDENTITY`)
		require.NoError(s.T(), err)
		return NewSQL(db)
	}
	suite.Run(t, s)
}
