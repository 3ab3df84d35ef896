package database

import (
	"testing"

	"oldmarket/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.MysqlConfig{
		Host:     "db",
		Port:     3306,
		User:     "shop",
		Password: "p@ss:word",
		DbName:   "oldmarket",
	})

	assert.Contains(t, dsn, "shop:p@ss:word@tcp(db:3306)/oldmarket?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestInitRedisDisabled(t *testing.T) {
	rdb, err := InitRedis(config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := InitRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer rdb.Close()
}

func TestInitRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := InitRedis(config.RedisConfig{Address: addr})
	assert.Error(t, err)
}
