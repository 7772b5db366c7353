package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterFlags defines the sync flags understood by Load. Defaults shown
// here are informational; only flags set on the command line override the
// config file.
func RegisterFlags(flags *pflag.FlagSet) {
	// Storage flags
	flags.String("driver", "minio", "Storage driver (minio/s3/blob)")
	flags.String("endpoint", "", "Object store endpoint (minio, or custom s3 endpoint)")
	flags.String("access-key", "", "Access key (falls back to "+EnvAccessKey+")")
	flags.String("secret-key", "", "Secret key (falls back to "+EnvSecretKey+")")
	flags.Bool("secure", true, "Use HTTPS for the endpoint")
	flags.String("region", "", "Bucket region")
	flags.String("bucket-url", "", "Bucket URL for the blob driver (s3://, gs://, file://, mem://)")

	// Sync flags
	flags.String("bucket", "", "Bucket name (required)")
	flags.String("local-root", "", "Local directory files are written to (required)")
	flags.String("prefix", "", "Remote key prefix")
	flags.StringSlice("ext", []string{".pdf"}, "Candidate extensions, tried in order")
	flags.Int("concurrency", 8, "Number of concurrent workers")
	flags.Int("retries", 3, "Maximum attempts per SKU")
	flags.Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	flags.Float64("backoff-multiplier", 2, "Backoff multiplier between attempts")
	flags.Int("max-backoff-ms", 30000, "Maximum retry backoff in milliseconds")
	flags.Duration("call-timeout", 60*time.Second, "Timeout for each HEAD and for the wait on a GET response; body streaming is not bounded")
	flags.Bool("dry-run", false, "Resolve SKUs without downloading")
	flags.Bool("skip-existing", true, "Skip SKUs that already exist locally")
	flags.Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")

	// Input flags
	flags.String("input", "", "CSV or Excel file with SKUs")
	flags.String("column", "SKU", "Header of the SKU column")
	flags.String("sheet", "", "Workbook sheet (default first sheet)")

	// Report flags
	flags.String("report", "", "Write the JSON report to this file")
	flags.String("not-found-file", "", "Write not-found SKUs to this file")
	flags.String("failed-file", "", "Write failed SKUs as CSV to this file")
	flags.String("history-db", "", "Record the run in this SQLite database")

	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
	flags.String("log-format", "json", "Log format (json/console)")
}
