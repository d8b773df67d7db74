package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"tapspot/config"
)

const (
	connectRetries = 5
	retryInterval  = 2 * time.Second
)

// DSN собирает строку подключения для драйвера, если она не задана явно
func DSN(conf config.DBConfig) string {
	if conf.DSN != "" {
		return conf.DSN
	}
	switch conf.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			conf.Host, conf.Port, conf.User, conf.Password, conf.Name,
		)
	case "sqlite":
		if conf.Name == "" {
			return "tapspot.db"
		}
		return conf.Name
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			conf.User, conf.Password, conf.Host, conf.Port, conf.Name,
		)
	}
}

// Dialector выбирает gorm-диалект по имени драйвера
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql", "":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", driver)
}

// Open подключается к основной БД (с повторами), регистрирует реплики
// для чтения и прогоняет миграции.
func Open(conf config.DBConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(conf.Driver, DSN(conf))
	if err != nil {
		return nil, err
	}

	gormConf := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var orm *gorm.DB
	for i := 0; i < connectRetries; i++ {
		orm, err = gorm.Open(dialector, gormConf)
		if err == nil {
			err = Ping(context.Background(), orm)
			if err == nil {
				break
			}
		}
		log.Warn("database is not reachable, retrying",
			zap.Int("attempt", i+1), zap.Int("max_attempts", connectRetries), zap.Error(err))
		if i < connectRetries-1 {
			time.Sleep(retryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", conf.Driver, err)
	}

	if len(conf.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(conf.Replicas))
		for _, dsn := range conf.Replicas {
			replica, err := Dialector(conf.Driver, dsn)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, replica)
		}
		err = orm.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return nil, fmt.Errorf("register replicas: %w", err)
		}
		log.Info("read replicas registered", zap.Int("count", len(replicas)))
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, err
	}
	if conf.Driver == "sqlite" {
		// sqlite не переносит параллельную запись из нескольких соединений
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
		sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(conf.ConnMaxLifetime)
	}

	if err := Migrate(orm); err != nil {
		return nil, err
	}
	return orm, nil
}

// Ping проверяет соединение с основной БД
func Ping(ctx context.Context, orm *gorm.DB) error {
	sqlDB, err := orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Read возвращает подключение для чтения (реплики). Результат - отдельная
// сессия: на нём можно выполнить несколько запросов подряд.
func Read(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Read).Session(&gorm.Session{})
}

// Write возвращает подключение для записи (мастер). Используется и для
// чтения сразу после записи.
func Write(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Write).Session(&gorm.Session{})
}
