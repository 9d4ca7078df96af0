package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

func configureLogging(logLevel string) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		err = fmt.Errorf("unknown level string: '%s', defaulting to debug", logLevel)
		log.Warn().Err(err).Msg("")
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// newLoggingChain logs one line per request. Only the path is logged: the
// callback query carries authorization codes and state.
func newLoggingChain(out io.Writer) alice.Chain {
	logger := zerolog.New(out).With().
		Timestamp().
		Logger()

	chain := alice.New(
		hlog.NewHandler(logger),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.UserAgentHandler("user_agent"),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
	)

	return chain
}
