package hub

import (
	"io"

	"github.com/rs/zerolog"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
