package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickcrawford/markdowninthemiddle/internal/browser"
	"github.com/rickcrawford/markdowninthemiddle/internal/certs"
	"github.com/rickcrawford/markdowninthemiddle/internal/chrome"
	"github.com/rickcrawford/markdowninthemiddle/internal/config"
	"github.com/rickcrawford/markdowninthemiddle/internal/errorpage"
	"github.com/rickcrawford/markdowninthemiddle/internal/logging"
	"github.com/rickcrawford/markdowninthemiddle/internal/mdfilter"
	"github.com/rickcrawford/markdowninthemiddle/internal/mitm"
	"github.com/rickcrawford/markdowninthemiddle/internal/proxy"
	"github.com/rickcrawford/markdowninthemiddle/internal/tokens"
	"github.com/rickcrawford/markdowninthemiddle/internal/urlfilter"
)

var cfgFile string

// rootCmd is the top-level command for the proxy.
var rootCmd = &cobra.Command{
	Use:   "markdowninthemiddle",
	Short: "An HTTPS forward proxy that converts HTML responses to Markdown",
	Long: `Markdown in the Middle is an HTTPS forward proxy that intercepts HTTP
responses, negotiates content with the requesting client, and converts
eligible HTML responses to Markdown for consumption by LLM agents.

Configure via config.yml, environment variables (MITM_ prefix), or CLI flags.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yml)")
	rootCmd.Flags().String("addr", "", "proxy listen address (overrides config)")
	rootCmd.Flags().Bool("tls", false, "enable TLS on proxy listener (overrides config)")
	rootCmd.Flags().Bool("auto-cert", false, "auto-generate self-signed certificate (overrides config)")
	rootCmd.Flags().Int64("max-body-size", 0, "max response body size in bytes (overrides config)")
	rootCmd.Flags().Bool("tls-insecure", false, "skip TLS certificate verification for upstream requests")
	rootCmd.Flags().String("transport", "", "transport type: http (standard reverse proxy) or chromedp (headless Chrome rendering)")
	rootCmd.Flags().StringSlice("allow", []string{}, "regex patterns for allowed URLs (repeatable)")
	rootCmd.Flags().Bool("chrome-launch", false, "launch a local headless Chrome if chromedp transport can't reach chrome-url")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides.
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Proxy.Addr = v
	}
	if v, _ := cmd.Flags().GetBool("tls"); v {
		cfg.TLS.Enabled = true
	}
	if v, _ := cmd.Flags().GetBool("auto-cert"); v {
		cfg.TLS.AutoCert = true
	}
	if v, _ := cmd.Flags().GetInt64("max-body-size"); v > 0 {
		enabled := true
		maxSize := v
		cfg.FilterRoot.Enabled = &enabled
		cfg.FilterRoot.MaxSize = &maxSize
	}
	if v, _ := cmd.Flags().GetBool("tls-insecure"); v {
		cfg.TLS.Insecure = true
	}
	if v, _ := cmd.Flags().GetString("transport"); v != "" {
		cfg.Transport.Type = v
	}
	if v, _ := cmd.Flags().GetStringSlice("allow"); len(v) > 0 {
		cfg.URLFilter.Allowed = v
	}

	// Auto-enable MITM if TLS is enabled (no need for separate flag)
	if cfg.TLS.Enabled {
		cfg.MITM.Enabled = true
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	// Precise token counter, additive to the heuristic estimator any scope
	// may request (SPEC_FULL §5.1).
	tokenCounter, err := tokens.NewCounter(cfg.Tokens.Encoding)
	if err != nil {
		return fmt.Errorf("initializing token counter: %w", err)
	}

	var errorPage *errorpage.Renderer
	if cfg.ErrorPage.Dir != "" {
		errorPage, err = errorpage.New(cfg.ErrorPage.Dir)
		if err != nil {
			return fmt.Errorf("loading error page template: %w", err)
		}
		log.Printf("on_error=reject body template loaded from: %s", cfg.ErrorPage.Dir)
	}

	orchestrator := mdfilter.New(logger, errorPage)
	orchestrator.PreciseCounter = tokenCounter

	// TLS config for the proxy listener.
	// If both TLS and MITM are enabled, use a unified CA certificate that works for both.
	var tlsCfg *tls.Config
	var sharedCAPath, sharedKeyPath string // Shared certificate for TLS and MITM

	if cfg.TLS.Enabled {
		var cert tls.Certificate

		// If MITM is also enabled, use a unified CA certificate for both TLS and MITM
		if cfg.MITM.Enabled && cfg.TLS.CertFile == "" && cfg.TLS.KeyFile == "" && cfg.TLS.AutoCert {
			certDir := cfg.TLS.AutoCertDir
			sharedCAPath, sharedKeyPath, err = certs.GenerateCA(cfg.TLS.AutoCertHost, certDir)
			if err != nil {
				return fmt.Errorf("generating unified CA certificate: %w", err)
			}
			cert, err = tls.LoadX509KeyPair(sharedCAPath, sharedKeyPath)
			if err != nil {
				return fmt.Errorf("loading unified CA certificate: %w", err)
			}
			log.Println("TLS enabled on proxy listener with unified CA certificate (also used for MITM)")
			log.Println("clients: trust the CA certificate in " + certDir + " for both TLS and MITM")
		} else {
			cert, err = certs.LoadOrGenerate(
				cfg.TLS.CertFile, cfg.TLS.KeyFile,
				cfg.TLS.AutoCert, cfg.TLS.AutoCertHost, cfg.TLS.AutoCertDir,
			)
			if err != nil {
				return fmt.Errorf("loading TLS certificate: %w", err)
			}
			log.Println("TLS enabled on proxy listener")
		}

		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	if cfg.TLS.Insecure {
		log.Println("WARNING: TLS certificate verification disabled for upstream requests")
	}

	// Compile request filter if patterns are specified
	var reqFilter *urlfilter.URLFilter
	if len(cfg.URLFilter.Allowed) > 0 {
		reqFilter, err = urlfilter.New(cfg.URLFilter.Allowed)
		if err != nil {
			return fmt.Errorf("compiling request filter: %w", err)
		}
		log.Printf("Request filter enabled with %d pattern(s)", len(cfg.URLFilter.Allowed))
	}

	// Initialize MITM manager if enabled
	var mitmMgr *mitm.Manager
	if cfg.MITM.Enabled {
		// If we have a shared CA certificate (from unified TLS+MITM), use that directory
		mitmCertDir := cfg.MITM.CertDir
		if sharedCAPath != "" {
			mitmCertDir = cfg.TLS.AutoCertDir
		}

		mitmMgr, err = mitm.New(mitmCertDir)
		if err != nil {
			return fmt.Errorf("initializing MITM: %w", err)
		}
		log.Println("HTTPS MITM interception enabled")
		log.Printf("CA certificate: %s", mitmMgr.CACertPath())
		if sharedCAPath != "" {
			log.Println("using unified CA certificate (shared with TLS listener)")
		}
		log.Println("IMPORTANT: clients must trust this CA certificate to use MITM mode")
	}

	// Initialize browser pool if chromedp transport is configured
	ctx := context.Background()
	var chromePool http.RoundTripper

	var chromeLauncher *chrome.Launcher
	if cfg.Transport.Type == "chromedp" {
		log.Println("chromedp transport enabled. Connecting to Chrome...")
		chromeURL := cfg.Transport.Chromedp.URL
		if chromeURL == "" {
			chromeURL = "http://localhost:9222"
		}

		chromePool, err = browser.New(ctx, chromeURL, cfg.Transport.Chromedp.PoolSize, 30*time.Second)
		if err != nil && cfg.Transport.Chromedp.URL == "" {
			launch, _ := cmd.Flags().GetBool("chrome-launch")
			if launch {
				log.Printf("Chrome not reachable at %s, launching a local instance...", chromeURL)
				chromeLauncher = chrome.New(9222)
				launchedURL, launchErr := chromeLauncher.Start()
				if launchErr != nil {
					return fmt.Errorf("launching local Chrome: %w", launchErr)
				}
				chromeURL = launchedURL
				chromePool, err = browser.New(ctx, chromeURL, cfg.Transport.Chromedp.PoolSize, 30*time.Second)
			}
		}
		if err != nil {
			log.Printf("ERROR: Failed to connect to Chrome at %s: %v", chromeURL, err)
			log.Println("\nTo use chromedp transport, start Chrome with:")
			log.Println("  macOS:   /Applications/Google\\ Chrome.app/Contents/MacOS/Google\\ Chrome --headless --disable-gpu --remote-debugging-port=9222")
			log.Println("  Linux:   chromium-browser --headless --disable-gpu --remote-debugging-port=9222")
			log.Println("  Windows: chrome.exe --headless --disable-gpu --remote-debugging-port=9222")
			log.Println("  Docker:  docker compose up -d")
			log.Println("  Or pass --chrome-launch to have the proxy start Chrome itself")
			return fmt.Errorf("chromedp transport enabled but Chrome is not running at %s", chromeURL)
		}
		log.Printf("chromedp browser pool ready (size: %d, URL: %s)", cfg.Transport.Chromedp.PoolSize, chromeURL)
	}

	opts := proxy.Options{
		Addr:         cfg.Proxy.Addr,
		ReadTimeout:  cfg.Proxy.ReadTimeout,
		WriteTimeout: cfg.Proxy.WriteTimeout,
		TLSConfig:    tlsCfg,
		TLSInsecure:  cfg.TLS.Insecure,
		Config:       cfg,
		Orchestrator: orchestrator,
		Logger:       logger,
		URLFilter:    reqFilter,
		Transport:    chromePool,
		MITM:         mitmMgr,
	}

	srv := proxy.New(opts)

	// Schedule cleanup of browser pool (and any locally-launched Chrome
	// process) on shutdown.
	var browserPoolCleanup func()
	if chromePool != nil {
		if pool, ok := chromePool.(*browser.Pool); ok {
			browserPoolCleanup = func() {
				pool.Close()
				if chromeLauncher != nil {
					chromeLauncher.Stop()
				}
			}
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("starting proxy on %s (TLS: %v)", cfg.Proxy.Addr, cfg.TLS.Enabled)

	go func() {
		<-quit
		log.Println("shutting down proxy...")
		if browserPoolCleanup != nil {
			log.Println("closing browser pool...")
			browserPoolCleanup()
		}
		srv.Close()
	}()

	if cfg.TLS.Enabled {
		// TLS cert/key are already loaded into TLSConfig; use empty strings.
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
