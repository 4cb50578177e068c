package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/web"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr        string
		assetsDir   string
		publicURL   string
		allowSubnet string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the browser build for injection into the Jellyfin web client",
		Long: `Serve hosts the loader script at /vidprev.js and the wasm bundle under /assets/.
Add <script src="http://HOST/vidprev.js"></script> to the Jellyfin web client to enable previews.
Attributes such as data-start-time="600" on that tag override the defaults served here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var allowedNet *net.IPNet
			if allowSubnet != "" {
				_, parsed, err := net.ParseCIDR(allowSubnet)
				if err != nil {
					return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
				}
				allowedNet = parsed
			}

			opts := web.Options{
				Addr:       addr,
				PublicURL:  publicURL,
				ServerURL:  ctx.serverURL,
				LogLevel:   logLevel,
				AllowedNet: allowedNet,
			}
			if assetsDir != "" {
				info, err := os.Stat(assetsDir)
				if err != nil {
					return fmt.Errorf("assets directory: %w", err)
				}
				if !info.IsDir() {
					return fmt.Errorf("assets path %s is not a directory", assetsDir)
				}
				opts.Assets = os.DirFS(assetsDir)
			}

			preview, err := ctx.preview(cmd)
			if err != nil {
				return err
			}
			opts.Preview = preview

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return web.NewServer(opts).Start(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8097", "Listen address")
	cmd.Flags().StringVar(&assetsDir, "assets", "", "Directory holding "+web.BundleFile+" and "+web.RuntimeFile)
	cmd.Flags().StringVar(&publicURL, "public-url", "", "Externally visible base URL (default: derived from the request)")
	cmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	cmd.Flags().StringVar(&logLevel, "client-log-level", "", "Log level for the browser engine (info, debug, trace)")
	return cmd
}
