package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/db"
)

const greetingBanner = `chatrelay - resume your web session from WhatsApp`

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "A webhook bridge linking WhatsApp conversations to web-app sessions",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:                viper.GetString("mode"),
			Addr:                viper.GetString("addr"),
			Port:                viper.GetInt("port"),
			Data:                viper.GetString("data"),
			Driver:              viper.GetString("driver"),
			DSN:                 viper.GetString("dsn"),
			InstanceURL:         viper.GetString("instance-url"),
			Secret:              viper.GetString("secret"),
			WebhookVerifyToken:  viper.GetString("webhook-verify-token"),
			AppSecret:           viper.GetString("app-secret"),
			BotNumber:           viper.GetString("bot-number"),
			PhoneNumberID:       viper.GetString("phone-number-id"),
			AccessToken:         viper.GetString("access-token"),
			ValidateSignature:   viper.GetBool("validate-signature"),
			ProcessInBackground: viper.GetBool("process-in-background"),
			LoginLinkExpiry:     viper.GetDuration("login-link-expiry"),
			LoginDuration:       viper.GetDuration("login-duration"),
			SessionTTL:          viper.GetDuration("session-ttl"),
			GlobalTTL:           viper.GetDuration("global-ttl"),
			LockLease:           viper.GetDuration("lock-lease"),
			LockWait:            viper.GetDuration("lock-wait"),
			Version:             version,
		}
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("failed to validate profile: %w", err)
		}

		observability.SetupLogger(instanceProfile.IsDev())

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate store: %w", err)
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			slog.Info("received signal, shutting down", "signal", sig.String())
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to start server: %w", err)
		}

		<-ctx.Done()
		return nil
	},
}

var version = "0.1.0"

func printGreetings(p *profile.Profile) {
	fmt.Println(greetingBanner)
	fmt.Printf("version %s, mode %s, driver %s\n", p.Version, p.Mode, p.Driver)
	fmt.Printf("listening on %s:%d\n", p.Addr, p.Port)
	if p.InstanceURL != "" {
		fmt.Printf("instance url %s\n", p.InstanceURL)
	}
}

func init() {
	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8231, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "public url of this instance, used in login links")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign browser session tokens")
	rootCmd.PersistentFlags().String("webhook-verify-token", "", "token expected in the webhook subscription handshake")
	rootCmd.PersistentFlags().String("app-secret", "", "secret used to verify webhook signatures")
	rootCmd.PersistentFlags().String("bot-number", "", "bot's WhatsApp number, digits only")
	rootCmd.PersistentFlags().String("phone-number-id", "", "Cloud API phone number id for outbound messages")
	rootCmd.PersistentFlags().String("access-token", "", "Cloud API access token for outbound messages")
	rootCmd.PersistentFlags().Bool("validate-signature", true, "enforce webhook signature verification")
	rootCmd.PersistentFlags().Bool("process-in-background", false, "process webhook payloads on background workers")
	rootCmd.PersistentFlags().Duration("login-link-expiry", 0, "lifetime of a one-time login link")
	rootCmd.PersistentFlags().Duration("login-duration", 0, "requested lifetime of a resumable session")
	rootCmd.PersistentFlags().Duration("session-ttl", 0, "TTL of conversation-scoped state")
	rootCmd.PersistentFlags().Duration("global-ttl", 0, "TTL of global-scoped state")
	rootCmd.PersistentFlags().Duration("lock-lease", 0, "max hold time of the per-user webhook lock")
	rootCmd.PersistentFlags().Duration("lock-wait", 0, "max wait time behind the per-user webhook lock")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("chatrelay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
