package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureudp/go-secureudp/cipher"
	"github.com/secureudp/go-secureudp/core"
)

var (
	opts       options
	configPath string
	logger     = zap.NewNop()
)

func logf(f string, v ...interface{}) {
	logger.Sugar().Infof(f, v...)
}

var rootCmd = &cobra.Command{
	Use:           "secureudp",
	Short:         "Encrypted datagrams over UDP with a pre-shared key",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			file, err := readConfigFile(configPath)
			if err != nil {
				return err
			}
			opts.merge(file, cmd.Flags())
		}

		var err error
		if opts.Verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return err
		}

		if opts.Metrics != "" {
			serveMetrics(opts.Metrics)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync() //nolint:errcheck
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random base64url-encoded key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, cipher.KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return err
		}
		fmt.Println(base64.URLEncoding.EncodeToString(key))
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print every message received on the listen address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.coreConfig()
		if err != nil {
			return err
		}
		r, err := core.ListenReceiver(opts.Listen, cfg)
		if err != nil {
			return err
		}
		defer r.Stop()
		if err := r.Start(printMessage); err != nil {
			return err
		}
		logf("listening UDP on %s", r.LocalAddr())
		waitSignal()
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send each line read from stdin to the remote address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.coreConfig()
		if err != nil {
			return err
		}
		s, err := core.DialSender(opts.Remote, cfg)
		if err != nil {
			return err
		}
		defer s.Stop()
		logf("sending to %s from %s", opts.Remote, s.LocalAddr())
		return prompt(s)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Receive on a port and send stdin lines to the same port on loopback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		cfg, err := opts.coreConfig()
		if err != nil {
			return err
		}

		r, err := core.ListenReceiver(net.JoinHostPort("", strconv.Itoa(port)), cfg)
		if err != nil {
			return err
		}
		defer r.Stop()
		if err := r.Start(printMessage); err != nil {
			return err
		}

		s, err := core.DialSender(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), cfg)
		if err != nil {
			return err
		}
		defer s.Stop()
		return prompt(s)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.Key, "key", "", "base64url-encoded 32-byte key")
	pf.StringVar(&opts.Password, "password", "", "derive the key from this password if --key is empty")
	pf.StringVar(&opts.Cipher, "cipher", cipher.DefaultSuite, "available ciphers: "+strings.Join(cipher.ListSuites(), " "))
	pf.BoolVar(&opts.Verbose, "verbose", false, "verbose mode")
	pf.StringVar(&opts.Metrics, "metrics", "", "serve Prometheus metrics on this address")

	listenCmd.Flags().StringVar(&opts.Listen, "listen", ":9000", "UDP listen address")
	listenCmd.Flags().BoolVar(&opts.Ack, "ack", false, "acknowledge every authenticated frame")
	listenCmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "drop retransmitted duplicates")
	listenCmd.Flags().IntVar(&opts.Queue, "queue", 0, "deliver through a queue of this size")

	sendCmd.Flags().StringVar(&opts.Remote, "to", "127.0.0.1:9000", "remote address")
	for _, c := range []*cobra.Command{sendCmd, chatCmd} {
		c.Flags().DurationVar(&opts.Interval, "interval", 0, "retransmission interval (default 100ms)")
		c.Flags().IntVar(&opts.MaxPending, "max-pending", 0, "retransmission set size (default 1024)")
		c.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "give up after this many transmissions (0 = never)")
	}
	chatCmd.Flags().Int("port", 9000, "UDP port")
	chatCmd.Flags().BoolVar(&opts.Ack, "ack", false, "acknowledge every authenticated frame")
	chatCmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "drop retransmitted duplicates")

	rootCmd.AddCommand(keygenCmd, listenCmd, sendCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "secureudp:", err)
		os.Exit(1)
	}
}

func printMessage(b []byte) {
	fmt.Printf("[Received] %s\n", b)
}

// prompt sends stdin lines until "exit", EOF or a signal.
func prompt(s *core.Sender) error {
	done := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		fmt.Print("Enter message: ")
		for sc.Scan() {
			line := sc.Text()
			if line == "exit" {
				break
			}
			if err := s.Send([]byte(line)); err != nil {
				fmt.Fprintln(os.Stderr, "send:", err)
			}
			fmt.Print("Enter message: ")
		}
		done <- sc.Err()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case err := <-done:
		return err
	case <-sigCh:
		return nil
	}
}

func waitSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	if err := core.RegisterMetrics(reg); err != nil {
		logf("metrics: %v", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logf("serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logf("metrics server: %v", err)
		}
	}()
}
