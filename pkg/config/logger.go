package config

import "go.uber.org/zap"

// NewLogger builds the process logger. Local environments get the
// development encoder, everything else the JSON production one.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
