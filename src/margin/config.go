package margin

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EvalInterval       time.Duration `envconfig:"MARGIN_EVAL_INTERVAL" default:"5s"`
	WarnThreshold      float64       `envconfig:"MARGIN_WARN_THRESHOLD" default:"70"`
	CriticalThreshold  float64       `envconfig:"MARGIN_CRITICAL_THRESHOLD" default:"80"`
	LiquidateThreshold float64       `envconfig:"MARGIN_LIQUIDATE_THRESHOLD" default:"90"`
	StalenessBound     time.Duration `envconfig:"MARGIN_STALENESS_BOUND" default:"2m"`
	MaxLeverage        int           `envconfig:"MARGIN_MAX_LEVERAGE" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
