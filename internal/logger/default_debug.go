//go:build debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is Debug for binaries built with -tags debug, e.g. a local
// `go run -tags debug ./cmd/doradura` invocation.
var defaultLevel = zerolog.DebugLevel
