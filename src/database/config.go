package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DatabaseURLMain string `envconfig:"DATABASE_URL_MAIN" default:"host=localhost user=postgres password=postgres dbname=tradegateway port=5432 sslmode=disable"`
	GormLogLevel    int    `envconfig:"GORM_LOG_LEVEL" default:"1"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
