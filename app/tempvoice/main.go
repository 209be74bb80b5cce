package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/commands"
	"github.com/Haibread/tempvoice/config"
	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/logging"
	"github.com/Haibread/tempvoice/metrics"
	"github.com/Haibread/tempvoice/panel"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	flags := pflag.NewFlagSet("tempvoice", pflag.ExitOnError)
	config.BindFlags(v, flags)
	_ = flags.Parse(os.Args[1:])
	configFile, _ := flags.GetString("config")

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	log, level, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer log.Sync()

	config.Watch(v, log, func(updated *config.Config) {
		if err := logging.SetLevel(level, updated.LogLevel); err != nil {
			log.Warnw("Ignoring log level change", "error", err)
			return
		}
		log.Infow("Applied config change", "log_level", updated.LogLevel)
	})

	db, err := database.Open(cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	store := database.NewStore(db)

	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers | discordgo.IntentsGuildPresences
	dg.StateEnabled = true

	platform := channels.NewSessionPlatform(dg)
	manager, err := channels.NewManager(channels.Options{
		DefaultTemplate: cfg.DefaultTemplate,
		PromptCacheSize: cfg.PromptCacheSize,
	}, store, platform, nil, log)
	if err != nil {
		return err
	}
	renderer := panel.NewRenderer(platform, manager, log)
	manager.SetNotifier(renderer)

	responder := panel.NewSessionResponder(dg)
	panelHandler := panel.NewHandler(manager, renderer, responder, cfg.ViewTimeout, log)
	cmds := commands.New(store, manager, panelHandler, responder, log)

	log.Info("Adding handlers")
	dg.AddHandler(manager.VCUpdate)
	dg.AddHandler(manager.ChannelDelete)
	dg.AddHandler(panelHandler.InteractionCreate)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Infow("Connected", "user", r.User.Username, "guilds", len(r.Guilds))
		if err := s.UpdateListeningStatus(cfg.BotStatus); err != nil {
			log.Warnw("Could not set status", "error", err)
		}
	})

	log.Info("Opening Websocket connection")
	if err := dg.Open(); err != nil {
		return fmt.Errorf("could not open websocket connection: %w", err)
	}
	defer dg.Close()

	if err := cmds.RegisterCommands(dg, cfg.GuildID); err != nil {
		return fmt.Errorf("cannot create commands: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr, log)
	}
	loops := channels.StartChannelLoops(ctx, manager, cfg.SweepInterval)

	// Wait here until CTRL-C or other term signal is received.
	log.Info("Bot is now running.  Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	cancel()
	<-loops

	log.Info("Starting to delete commands")
	commands.RemoveCommands(dg, cfg.GuildID, log)
	return nil
}
