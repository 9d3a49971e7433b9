package connector

// OptionKey identifies a socket option understood by the transport runtime.
type OptionKey string

// Socket options. The value type each key expects is noted alongside.
const (
	OptionConnectTimeout OptionKey = "connect_timeout" // time.Duration
	OptionTCPKeepAlive   OptionKey = "tcp_keep_alive"  // time.Duration
	OptionTCPNoDelay     OptionKey = "tcp_no_delay"    // bool
	OptionReadBuffer     OptionKey = "read_buffer"     // int, bytes
	OptionWriteBuffer    OptionKey = "write_buffer"    // int, bytes
	OptionLocalAddr      OptionKey = "local_addr"      // string, host[:port]
)

// OptionSet maps option keys to values. Iteration order is unspecified, so
// options must not depend on each other.
type OptionSet map[OptionKey]any

// Bootstrap is the transport bootstrap target options are applied to.
//
// Option has no error return. A runtime that rejects a key or value reports
// it when it dials.
type Bootstrap interface {
	Option(key OptionKey, value any)
}

// ApplyOptions sets every entry of options on target, one Option call per key.
// An empty or nil set leaves target untouched.
func ApplyOptions(target Bootstrap, options OptionSet) {
	for key, value := range options {
		target.Option(key, value)
	}
}

// ApplyOptions sets every entry of options on target. It touches no connector
// state and is safe to call concurrently for independent targets.
func (b *Base) ApplyOptions(target Bootstrap, options OptionSet) {
	ApplyOptions(target, options)
}
