// Package autoload configures the global logger from the environment on
// blank import, so binaries get structured logging before any other init.
package autoload

import (
	configx "cryobank/pkg/config"
	logx "cryobank/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
