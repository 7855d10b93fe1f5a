package openim

import "time"

// Config configures a Client. Construct with NewConfig and the With*
// options below, generalizing the teacher's Config/Default()/Load() pattern
// (client/internal/config/config.go) into the functional-options idiom,
// since this SDK has no on-disk preferences file to round-trip — every
// field is supplied by the embedding application at construction time.
type Config struct {
	// DBPath is the SQLite database file path. Use ":memory:" for ephemeral
	// storage (tests).
	DBPath string

	// WSBaseURL is the websocket base URL the transport session dials.
	WSBaseURL string

	// HTTPBaseURL is the base URL the HTTP client issues requests against.
	HTTPBaseURL string

	// PlatformID identifies this client's platform to the server.
	PlatformID int32

	// SDKType is reported on the websocket URL, per spec §6.
	SDKType string

	// Compression, if non-empty, is reported on the websocket URL.
	Compression string

	// IsBackground and IsMsgResp are reported on the websocket URL.
	IsBackground bool
	IsMsgResp    bool

	// OptimizeInterval is how often the store's background optimizer runs,
	// mirroring the teacher's hourly store.Optimize background task in
	// server/main.go.
	OptimizeInterval time.Duration

	// DedupCapacity bounds the recently-seen client_msg_id guard. Zero uses
	// dedup.DefaultCapacity.
	DedupCapacity int
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig returns a Config with the SDK's baseline defaults; callers
// apply Options on top via NewConfig.
func DefaultConfig() Config {
	return Config{
		DBPath:           "openim.db",
		PlatformID:       1,
		SDKType:          "go",
		OptimizeInterval: time.Hour,
	}
}

// NewConfig builds a Config from DefaultConfig with opts applied in order.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithDBPath(path string) Option         { return func(c *Config) { c.DBPath = path } }
func WithWSBaseURL(url string) Option       { return func(c *Config) { c.WSBaseURL = url } }
func WithHTTPBaseURL(url string) Option     { return func(c *Config) { c.HTTPBaseURL = url } }
func WithPlatformID(id int32) Option        { return func(c *Config) { c.PlatformID = id } }
func WithSDKType(sdkType string) Option     { return func(c *Config) { c.SDKType = sdkType } }
func WithCompression(alg string) Option     { return func(c *Config) { c.Compression = alg } }
func WithBackground(bg bool) Option         { return func(c *Config) { c.IsBackground = bg } }
func WithMsgResp(v bool) Option             { return func(c *Config) { c.IsMsgResp = v } }
func WithOptimizeInterval(d time.Duration) Option {
	return func(c *Config) { c.OptimizeInterval = d }
}
func WithDedupCapacity(n int) Option { return func(c *Config) { c.DedupCapacity = n } }
