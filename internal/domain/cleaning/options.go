package cleaning

// TimestampPolicy decides what happens to a row whose timestamp cannot be parsed.
type TimestampPolicy string

// Supported timestamp policies.
const (
	PolicyFail TimestampPolicy = "fail" // reject the whole batch with a ParseError
	PolicyDrop TimestampPolicy = "drop" // drop the row and count it in Stats
)

// Option applies a configuration option to the Cleaner.
type Option func(*Cleaner)

// WithTimestampPolicy sets the parse-failure policy. Unknown values are ignored.
func WithTimestampPolicy(p TimestampPolicy) Option {
	return func(c *Cleaner) {
		if p == PolicyFail || p == PolicyDrop {
			c.policy = p
		}
	}
}

// WithTimestampLayouts replaces the accepted timestamp layouts.
func WithTimestampLayouts(layouts ...string) Option {
	return func(c *Cleaner) {
		if len(layouts) > 0 {
			c.layouts = append([]string(nil), layouts...)
		}
	}
}
