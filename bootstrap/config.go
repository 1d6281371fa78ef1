package bootstrap

import (
	"github.com/kbukum/framepipe/config"
)

// Config is the interface constraint for application configuration types.
// Any struct that embeds config.ServiceConfig (value embedding) satisfies
// GetServiceConfig through the promoted method; ApplyDefaults and Validate
// are usually overridden to cover the extra sections.
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Ledger ledger.Config `yaml:"ledger" mapstructure:"ledger"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
