package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimte/fishbus-go/config"
	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/health"
	"github.com/glimte/fishbus-go/interceptors"
	"github.com/glimte/fishbus-go/internal/reliability"
	"github.com/glimte/fishbus-go/logcontext"
	"github.com/glimte/fishbus-go/messaging"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath  string
	transport   string
	destination string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "fishbus",
		Short: "Send and receive fishbus messages",
		Long: `fishbus publishes demo greetings over RabbitMQ or Redis Streams and listens for them.
Every message carries a correlation id that shows up in the listener's logs.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&opts.transport, "transport", "t", transportRabbitMQ, "Transport to use (rabbitmq or redis)")
	rootCmd.PersistentFlags().StringVarP(&opts.destination, "destination", "d", "", "Queue or stream name (default "+defaultQueue+" or the configured redis stream)")

	rootCmd.AddCommand(newSendCommand(opts), newListenCommand(opts), newHealthCommand(opts))
	return rootCmd
}

func newSendCommand(opts *globalOptions) *cobra.Command {
	var (
		text          string
		delay         time.Duration
		ttl           time.Duration
		correlationID string
		count         int
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish greetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			for i := 0; i < count; i++ {
				greeting := newGreeting(text, i+1, ttl)

				var envelope *contracts.Envelope
				if delay > 0 {
					envelope, err = app.publisher.SendDelayed(ctx, opts.destination, greeting, delay, correlationID)
				} else {
					envelope, err = app.publisher.Send(ctx, opts.destination, greeting, correlationID)
				}
				if err != nil {
					return err
				}

				fmt.Printf("sent %s (label %s, correlation %v)\n",
					envelope.ID(), envelope.Label, envelope.CustomProperties[app.builder.CorrelationProperty()])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "hello", "Greeting text")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Deliver after this delay")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Discard the greeting if not consumed within this duration")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id; generated when empty")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of greetings to send")
	return cmd
}

func newListenCommand(opts *globalOptions) *cobra.Command {
	var (
		replyTo  string
		prefetch int
		retries  int
		labels   []string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume greetings until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			chain := interceptors.NewInterceptorChain(app.logger).
				Add(interceptors.NewCorrelationInterceptor(app.pusher))
			if len(labels) > 0 {
				chain.Add(interceptors.NewFilteringInterceptor(
					interceptors.NewLabelFilter(labels...), interceptors.SkipWithLog, app.logger))
			}
			chain.Add(interceptors.NewLoggingInterceptor(app.logger))
			if retries > 0 {
				chain.Add(interceptors.NewRetryInterceptor(
					reliability.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, retries), app.logger))
			}

			handler := interceptors.EnvelopeHandlerFunc(func(ctx context.Context, envelope *contracts.Envelope) error {
				return app.handleGreeting(ctx, envelope, replyTo)
			})

			err = app.subscriber.Subscribe(ctx, opts.destination,
				interceptors.DeliveryHandler(chain, handler, app.logger),
				messaging.SubscriptionOptions{PrefetchCount: prefetch, Consumer: "fishbus-cli"})
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", opts.destination, err)
			}

			app.logger.InfoContext(ctx, "listening", "destination", opts.destination, "interceptors", chain.Names())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&replyTo, "reply-to", "", "Publish a reply for every greeting to this destination")
	cmd.Flags().IntVar(&prefetch, "prefetch", 10, "Maximum unacknowledged messages")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a failed greeting this many times before rejecting it")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Only handle these labels")
	return cmd
}

func (a *app) handleGreeting(ctx context.Context, envelope *contracts.Envelope, replyTo string) error {
	var greeting Greeting
	if err := a.builder.Decode(envelope, &greeting); err != nil {
		return reliability.Permanent(err)
	}

	correlationID, _ := logcontext.CorrelationID(ctx)
	a.logger.InfoContext(ctx, "greeting received", "seq", greeting.Seq, "text", greeting.Text)
	fmt.Printf("received %s: %q (correlation %s)\n", envelope.ID(), greeting.Text, correlationID)

	if replyTo == "" {
		return nil
	}

	// no explicit id: the reply inherits the correlation id of the greeting
	_, err := a.publisher.Send(ctx, replyTo, newGreeting("re: "+greeting.Text, greeting.Seq, 0), "")
	return err
}

func newHealthCommand(opts *globalOptions) *cobra.Command {
	var (
		timeout      time.Duration
		maxScheduled int64
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the transport and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			app, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			overall := healthRegistry(app.bus, opts.destination, maxScheduled).Check(ctx)

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(overall); err != nil {
				return err
			}

			if overall.Status == health.StatusUnhealthy {
				return fmt.Errorf("transport is %s", overall.Status)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall check timeout")
	cmd.Flags().Int64Var(&maxScheduled, "max-scheduled", 0, "Report degraded above this many scheduled envelopes (redis only)")
	return cmd
}

// loadConfig reads the config file, or returns the defaults when path is empty
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
