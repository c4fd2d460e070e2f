// Command video-call-peer is a headless participant: it connects to a relay,
// joins a room, and negotiates audio/video sessions with every other member.
// Useful for load-testing a relay and for standing in as the remote end of a
// call during development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/owes2005/video-call-project/internal/client"
	"github.com/owes2005/video-call-project/internal/config"
	"github.com/owes2005/video-call-project/internal/media"
	"github.com/owes2005/video-call-project/internal/session"
	"github.com/owes2005/video-call-project/internal/webrtcpeer"
)

func main() {
	fs := flag.NewFlagSet("video-call-peer", flag.ContinueOnError)
	serverURL := fs.String("server", "ws://127.0.0.1:5000/ws", "Relay websocket URL")
	room := fs.String("room", "", "Room to join (required)")
	chat := fs.String("chat", "", "Chat message to send once joined")
	shareFor := fs.Duration("share-screen-for", 0, "Share a screen track for this long after joining, then revert")
	muteAudio := fs.Bool("mute-audio", false, "Start with outbound audio muted")
	muteVideo := fs.Bool("mute-video", false, "Start with outbound camera video muted")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if *room == "" {
		fmt.Fprintln(os.Stderr, "-room is required")
		os.Exit(2)
	}

	// Shared settings (ICE servers, video caps, logging) come from the same
	// environment the relay reads.
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	opts := runOptions{
		serverURL: *serverURL,
		room:      *room,
		chat:      *chat,
		shareFor:  *shareFor,
		muteAudio: *muteAudio,
		muteVideo: *muteVideo,
	}
	if err := run(cfg, logger, opts); err != nil {
		logger.Error("peer exited", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	serverURL string
	room      string
	chat      string
	shareFor  time.Duration
	muteAudio bool
	muteVideo bool
}

func run(cfg config.Config, logger *slog.Logger, opts runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := webrtcpeer.NewAPI(cfg)
	if err != nil {
		return fmt.Errorf("configure webrtc: %w", err)
	}

	src, err := media.NewSource(media.Config{
		VideoMaxBitrateBps: cfg.VideoMaxBitrateBps,
		VideoMaxFramerate:  cfg.VideoMaxFramerate,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	src.SetAudioEnabled(!opts.muteAudio)
	src.SetVideoEnabled(!opts.muteVideo)

	c, err := client.Dial(ctx, opts.serverURL, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("connected", "self", c.Self(), "server", opts.serverURL)

	onTrack := func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("remote track", "kind", track.Kind().String(), "id", track.ID())
	}
	manager := session.NewManager(session.Config{
		Transport: webrtcpeer.Factory(api, cfg.ICEServers, onTrack),
		Media:     src,
		Send:      c.SendSignal,
		Constraints: session.VideoConstraints{
			MaxBitrateBps: cfg.VideoMaxBitrateBps,
			MaxFramerate:  cfg.VideoMaxFramerate,
		},
		Logger: logger,
	})
	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Close()

	ev := client.SessionEvents(manager)
	ev.OnChat = func(sender, text, timestamp string) {
		logger.Info("chat", "sender", sender, "text", text, "time", timestamp)
	}

	if err := c.Join(opts.room); err != nil {
		return err
	}
	logger.Info("joined room", "room", opts.room)

	if opts.chat != "" {
		if err := c.SendChat(opts.chat); err != nil {
			return err
		}
	}

	if opts.shareFor > 0 {
		go func() {
			if err := manager.StartScreenShare(); err != nil {
				logger.Error("screen share failed", "err", err)
				return
			}
			logger.Info("screen share started", "duration", opts.shareFor)
			select {
			case <-time.After(opts.shareFor):
				manager.StopScreenShare()
				logger.Info("screen share stopped")
			case <-ctx.Done():
			}
		}()
	}

	err = c.Run(ctx, ev)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown signal received")
		return nil
	}
	return err
}
