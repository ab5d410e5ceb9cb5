package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff"
)

var rootCmd = &cobra.Command{
	Use:   "s3diff <source-file> <s3://bucket/key>",
	Short: "Incrementally upload a growing file to S3",
	Long: `s3diff uploads only the bytes of a local file that the destination
object does not already contain. The existing remote content is reused via
server-side copy, so repeated runs against a growing file cost bandwidth
proportional to its growth rather than its size.

Destinations with a .gz suffix should be uploaded with --compress: each run
appends an independent gzip member, and the concatenation decompresses to
the full source file.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().BoolP("compress", "z", false, "gzip-compress appended data")
	rootCmd.Flags().String("content-type", "", "override the destination content type")
	rootCmd.Flags().String("resume-threshold", "", "minimum remote size to resume from, e.g. 5MiB")
	rootCmd.Flags().String("part-size", "", "buffered bytes per uploaded part, e.g. 8MiB")
	rootCmd.Flags().Bool("full-on-truncate", false, "re-upload in full when the source shrank")
	rootCmd.Flags().StringP("region", "r", "", "AWS region")
	rootCmd.Flags().String("endpoint", "", "custom S3 endpoint URL")
	rootCmd.Flags().Bool("path-style", false, "use path-style addressing")
	rootCmd.Flags().Duration("timeout", 0, "per-run timeout, 0 disables")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
}

func bindConfig(cmd *cobra.Command) error {
	for _, name := range []string{
		"compress", "content-type", "resume-threshold", "part-size",
		"full-on-truncate", "region", "endpoint", "path-style", "timeout", "verbose",
	} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	viper.SetEnvPrefix("S3DIFF")
	viper.AutomaticEnv()
	return nil
}

func run(ctx context.Context, srcPath, dstURI string) error {
	logger := newLogger(viper.GetBool("verbose"))

	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	clientOpts := []s3diff.Option{s3diff.WithLogger(logger)}
	if region := viper.GetString("region"); region != "" {
		clientOpts = append(clientOpts, s3diff.WithRegion(region))
	}
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		clientOpts = append(clientOpts, s3diff.WithEndpoint(endpoint))
	}
	if viper.GetBool("path-style") {
		clientOpts = append(clientOpts, s3diff.WithForcePathStyle(true))
	}
	if access, secret := viper.GetString("access_key"), viper.GetString("secret_key"); access != "" && secret != "" {
		clientOpts = append(clientOpts, s3diff.WithStaticCredentials(access, secret))
	}

	client, err := s3diff.New(clientOpts...)
	if err != nil {
		return err
	}

	uploadOpts := []s3diff.UploadOption{
		s3diff.WithCompression(viper.GetBool("compress")),
	}
	if ct := viper.GetString("content-type"); ct != "" {
		uploadOpts = append(uploadOpts, s3diff.WithContentType(ct))
	}
	if raw := viper.GetString("resume-threshold"); raw != "" {
		threshold, perr := humanize.ParseBytes(raw)
		if perr != nil {
			return fmt.Errorf("invalid resume-threshold %q: %w", raw, perr)
		}
		uploadOpts = append(uploadOpts, s3diff.WithResumeThreshold(int64(threshold)))
	}
	if raw := viper.GetString("part-size"); raw != "" {
		size, perr := humanize.ParseBytes(raw)
		if perr != nil {
			return fmt.Errorf("invalid part-size %q: %w", raw, perr)
		}
		uploadOpts = append(uploadOpts, s3diff.WithPartFlushSize(int64(size)))
	}
	if viper.GetBool("full-on-truncate") {
		uploadOpts = append(uploadOpts, s3diff.WithFullUploadOnTruncate())
	}

	result, err := client.DiffUpload(ctx, srcPath, dstURI, uploadOpts...)
	if err != nil {
		return err
	}

	mode := "full upload"
	if result.Resumed {
		mode = fmt.Sprintf("resumed from %s", humanize.IBytes(uint64(result.StartingOffset)))
	}
	fmt.Printf("s3://%s/%s: %s, %s read, %s sent in %d parts (%s)\n",
		result.Bucket, result.Key, mode,
		humanize.IBytes(uint64(result.BytesRead)),
		humanize.IBytes(uint64(result.BytesUploaded)),
		result.Parts,
		result.Duration.Round(time.Millisecond))

	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	return slog.New(handler)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
