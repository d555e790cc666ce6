package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the end-to-end scenarios at two running server instances
// that share a real bus and log. The suite is skipped when the addresses
// are not provided.
type Config struct {
	InstanceAURL string `envconfig:"INSTANCE_A_URL"`
	InstanceBURL string `envconfig:"INSTANCE_B_URL"`
	// E2E_DELIVERY_WINDOW bounds how long a bus delivery may take.
	DeliveryWindow string `envconfig:"E2E_DELIVERY_WINDOW" default:"2s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
