package config

// Config holds app configuration
type Config struct {
	// InputFile is the ZIP archive to decode.
	InputFile string `mapstructure:"input"`

	// OutputFile receives the annotated transcript.
	OutputFile string `mapstructure:"output"`

	// Streaming selects the forward-only single-pass walker instead of the
	// random-access resolver. The walker never seeks and never needs the
	// file size in advance.
	Streaming bool `mapstructure:"streaming"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
