package config

// StorageConfig selects the backing stores. Empty values fall back to in-memory stores.
type StorageConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}
