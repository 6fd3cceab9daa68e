package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_sales.sql":  {Data: []byte("SELECT 1;")},
		"0001_init.sql":   {Data: []byte("SELECT 1;")},
		"embed.go":        {Data: []byte("package migrations")},
		"archive/old.sql": {Data: []byte("SELECT 1;")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql", "0002_sales.sql"}, names)
}
