package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Keys the middleware and handlers store on the gin context
const (
	KeyRequestID = "request_id"
	KeyStartTime = "start_time"
	KeySessionID = "session_id"
)

// withGinContext stamps request id, session id and elapsed time onto e
func withGinContext(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	for _, key := range []string{KeyRequestID, KeySessionID} {
		if s := c.GetString(key); s != "" {
			e.Str(key, s)
		}
	}
	if t, ok := c.Get(KeyStartTime); ok {
		if start, ok := t.(time.Time); ok {
			e.Dur("duration", time.Since(start))
		}
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Error()) }
