package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taleweaver/internal/app"
	"taleweaver/internal/cli/scheme/colours"
	"taleweaver/internal/config"
)

func main() {
	v := config.New()
	var weaver *app.Weaver

	rootCmd := &cobra.Command{
		Use:   "taleweaver",
		Short: "Play generated story scenes as they are produced",
		Long: `
taleweaver follows a story generation pipeline, tracks its stages and plays
each finished scene: intro and scene narration in order, ambient effects
once the scene is audible, and the spoken word highlighted as it is read.
		`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			if err := config.SetupLogging(logrus.StandardLogger(), cfg.Log); err != nil {
				return err
			}
			weaver = app.New(cfg, logrus.WithField("app", "taleweaver"))

			// Setup signal handling for graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				fmt.Println("\n" + colours.Warning.Sprint("Stopping..."))
				weaver.Cancel()
			}()
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			weaver.ShowWelcome()
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.taleweaver/taleweaver.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow the pipeline's event stream and play the session",
		RunE:  func(cmd *cobra.Command, args []string) error { return weaver.Listen(cmd, args) },
	}
	listenCmd.Flags().String("url", "", "Event stream URL (default pipeline.url + pipeline.events_path)")

	replayCmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Play a recorded event stream",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return weaver.Replay(cmd, args) },
	}
	replayCmd.Flags().Duration("pace", 200*time.Millisecond, "Delay between replayed events")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept events and commands over HTTP",
		RunE:  func(cmd *cobra.Command, args []string) error { return weaver.Serve(cmd, args) },
	}
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")

	locateCmd := &cobra.Command{
		Use:   "locate <timings.json> <ms>",
		Short: "Print the word voiced at a narration position",
		Args:  cobra.ExactArgs(2),
		RunE:  func(cmd *cobra.Command, args []string) error { return weaver.Locate(cmd, args) },
	}

	effectsCmd := &cobra.Command{
		Use:   "effects",
		Short: "Manage the effect cue cache",
	}
	effectsCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show cache status",
			RunE:  func(cmd *cobra.Command, args []string) error { return weaver.ShowCacheStatus(cmd, args) },
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached cue",
			RunE:  func(cmd *cobra.Command, args []string) error { return weaver.ClearCache(cmd, args) },
		},
	)

	rootCmd.AddCommand(listenCmd, replayCmd, serveCmd, locateCmd, effectsCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
