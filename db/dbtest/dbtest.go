// Package dbtest поднимает изолированную sqlite-базу для тестов.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapspot/config"
	"tapspot/db"
)

var seq atomic.Int64

// New открывает чистую in-memory базу с применёнными миграциями.
// База живёт, пока открыто единственное соединение пула.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))

	orm, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return orm
}
