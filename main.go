package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/zipdump/internal/config"
	"github.com/ossyrian/zipdump/internal/dump"
	"github.com/ossyrian/zipdump/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "zipdump <input> <output>",
	Short: "Decode a ZIP archive's on-disk layout into an annotated hex transcript",
	Long: `zipdump decodes the structural layout of a ZIP archive, including ZIP64
records, extra-field sub-records, data descriptors and comments, and writes
a transcript in which every byte is accounted for and every field labeled.`,
	Args: cobra.ExactArgs(2),
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	rootCmd.Flags().Bool("streaming", false, "decode in a single forward pass without seeking")

	// other opts
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	viper.BindPFlag("streaming", rootCmd.Flags().Lookup("streaming"))
	viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.Flags().Lookup("log-output-dir"))
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "zipdump"))
		}
		viper.AddConfigPath("/etc/zipdump")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("ZIPDUMP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// run decodes the archive named by the first argument and writes the
// transcript to the second.
func run(cmd *cobra.Command, args []string) error {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg.InputFile, cfg.OutputFile = args[0], args[1]

	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}

	logger := slog.With("file", cfg.InputFile)
	logger.Info("decoding archive", "streaming", cfg.Streaming)

	in, err := os.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)

	if cfg.Streaming {
		err = dump.DumpStream(bufio.NewReader(in), w, logger)
	} else {
		var info os.FileInfo
		if info, err = in.Stat(); err != nil {
			return fmt.Errorf("failed to stat archive: %w", err)
		}
		err = dump.DumpArchive(in, uint64(info.Size()), w, logger)
	}
	if err != nil {
		logger.Error("decode failed", "error", err)
		return err
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
