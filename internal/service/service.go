// Package service adapts the biz use cases to the HTTP transport.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewOracleService)
