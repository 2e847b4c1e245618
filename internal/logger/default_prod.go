//go:build !debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is Info for ordinary builds; DORADURA_DEBUG=1 overrides it
// at runtime without needing a rebuild.
var defaultLevel = zerolog.InfoLevel
