package main

import (
	"time"

	"github.com/spf13/cobra"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fabric-server",
		Short:        "Ingests RTMP and serves it back out over RTMP, HTTP-FLV and HLS",
		SilenceUsage: true,
		RunE:         runServer,
	}

	fs := cmd.Flags()
	fs.String("listen", ":1935", "TCP listen address (e.g. :1935 or 0.0.0.0:1935)")
	fs.String("log-level", "info", "Log level: debug|info|warn|error")
	fs.Uint("chunk-size", 4096, "Initial outbound chunk size")

	fs.Bool("hls-enable", false, "Enable the HLS segmenter and HTTP playlist surface")
	fs.String("hls-addr", ":8080", "HLS HTTP listen address")
	fs.Duration("hls-ts-duration", 5*time.Second, "Target HLS segment duration")
	fs.String("hls-data-path", "hls-data", "Directory for HLS segment files")

	fs.Bool("http-flv-enable", false, "Enable the HTTP-FLV live egress")
	fs.String("http-flv-addr", ":8081", "HTTP-FLV listen address")

	fs.Bool("flv-enable", false, "Enable recording of all streams to flv-data-path")
	fs.String("flv-data-path", "recordings", "Directory to write FLV recordings")

	fs.Bool("auth-enable", false, "Require a valid stream key on publish")
	fs.String("credential-store-url", "", "Remote credential store base URL")
	fs.Bool("full-gop", false, "Cache every inter-frame since the last keyframe, not just the keyframe")

	fs.StringSlice("relay-to", nil, "RTMP destination URL (can be specified multiple times)")
	fs.StringSlice("hook-script", nil, "Hook script in format event_type=script_path (can be specified multiple times)")
	fs.StringSlice("hook-webhook", nil, "Hook webhook in format event_type=webhook_url (can be specified multiple times)")
	fs.String("hook-stdio-format", "", "Enable structured stdio output: json|env (empty=disabled)")
	fs.String("hook-timeout", "30s", "Hook timeout; validated but not applied (shell and webhook hooks use 30s)")
	fs.Int("hook-concurrency", 10, "Maximum concurrent hook executions")

	fs.Bool("version", false, "Print version and exit")

	return cmd
}
