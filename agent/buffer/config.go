package buffer

import "time"

// Mode selects how debounce windows are timed.
type Mode string

const (
	// ModeLocal arms an in-process timer per key.
	ModeLocal Mode = "local"
	// ModeDistributed schedules flushes in a shared sorted set polled by a worker.
	ModeDistributed Mode = "distributed"
	// ModeServerless schedules flushes in the shared sorted set and wakes up
	// through delayed QStash callbacks instead of a poller.
	ModeServerless Mode = "serverless"
	// ModeOff disables buffering: every message is its own turn.
	ModeOff Mode = "off"
)

type Config struct {
	Mode            Mode          `split_words:"true" default:"local"`
	DebounceSeconds string        `split_words:"true"`
	KeyPrefix       string        `split_words:"true" default:"buffer"`
	PollInterval    time.Duration `split_words:"true" default:"1s"`
	PollBatch       int64         `split_words:"true" default:"50"`
	MetaGrace       time.Duration `split_words:"true" default:"30s"`
	CallbackURL     string        `split_words:"true"`
}
