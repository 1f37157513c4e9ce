package chain

import "github.com/rs/zerolog"

// Logger is used for transient query errors while polling.
var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}
