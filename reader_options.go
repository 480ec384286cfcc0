package sd2

// UnknownConstructorPolicy controls what happens when a ConstructorNamed or
// ConstructorTuple value names a constructor the configured registry does
// not recognize.
type UnknownConstructorPolicy int

const (
	// KeepRaw returns the raw constructor value unresolved.
	KeepRaw UnknownConstructorPolicy = iota
	// ErrorOnUnknown raises E5001 naming the unresolved constructor.
	ErrorOnUnknown
)

// ErrorHandler receives structured error records when recovery mode is
// enabled, in document order as they occur.
type ErrorHandler func(Error)

// ReaderConfig holds every Reader knob from the external interface
// contract. It is built through functional options, grounded on the
// teacher's plain-struct Decoder but split into options here because the
// Reader has five independent knobs where the teacher's Decoder had none.
type ReaderConfig struct {
	StreamValues             bool
	AllowRecovery            bool
	OnError                  ErrorHandler
	ConstructorRegistry      *ConstructorRegistry // nil means "no resolution"
	UnknownConstructorPolicy UnknownConstructorPolicy
}

// ReaderOption configures a ReaderConfig.
type ReaderOption func(*ReaderConfig)

// defaultReaderConfig returns the documented defaults: streamValues off,
// recovery off, no callback, the built-in temporal registry, KeepRaw.
func defaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		StreamValues:             false,
		AllowRecovery:            false,
		OnError:                  nil,
		ConstructorRegistry:      DefaultTemporalRegistry(),
		UnknownConstructorPolicy: KeepRaw,
	}
}

// WithStreamValues sets the reserved streamValues flag. No value-chunk
// events are defined for it; the Reader never reads the flag, so the event
// stream is the same whether it is set or not.
func WithStreamValues(v bool) ReaderOption {
	return func(c *ReaderConfig) { c.StreamValues = v }
}

// WithRecovery enables or disables recovery mode.
func WithRecovery(v bool) ReaderOption {
	return func(c *ReaderConfig) { c.AllowRecovery = v }
}

// WithOnError installs the callback invoked for each error encountered
// while recovery mode is enabled.
func WithOnError(h ErrorHandler) ReaderOption {
	return func(c *ReaderConfig) { c.OnError = h }
}

// WithConstructorRegistry installs the registry consulted for every
// completed ConstructorNamed/ConstructorTuple value. Pass nil to disable
// resolution entirely (raw constructor values pass through unchanged).
func WithConstructorRegistry(reg *ConstructorRegistry) ReaderOption {
	return func(c *ReaderConfig) { c.ConstructorRegistry = reg }
}

// WithUnknownConstructorPolicy sets the policy applied when a registry is
// configured but a given constructor name isn't registered.
func WithUnknownConstructorPolicy(p UnknownConstructorPolicy) ReaderOption {
	return func(c *ReaderConfig) { c.UnknownConstructorPolicy = p }
}
