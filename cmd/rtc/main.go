package main

import (
	"context"
	goflag "flag"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/call"
	"github.com/vibgyor/rtc/pkg/client"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/monitoring"
	"github.com/vibgyor/rtc/pkg/os"
	"github.com/vibgyor/rtc/pkg/webrtc"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	token := goflag.String("token", "", "Bearer token of the identity to connect as")
	conf := config.NewClientConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Client.Debug, "rtc", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
		log.Debug().Msgf("ice: %v", webrtc.IceToJson(conf.Webrtc.IceServers))
	}

	lock, err := os.NewFileLock(conf.Client.LockFile)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't create the instance lock")
	}
	if ok, err := lock.TryLock(); err != nil || !ok {
		log.Fatal().Err(err).Msg("another client instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Client.Monitoring.IsEnabled() {
		m, err := monitoring.New(conf.Client.Monitoring, "rtc", log)
		if err != nil {
			log.Fatal().Err(err).Msg("couldn't init the monitoring server")
		}
		m.Run()
		defer func() {
			if err := m.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("monitoring shutdown errors")
			}
		}()
	}

	if path, ok := config.FilePath(config.CustomPath()); ok {
		if w, err := config.NewWatcher(path, log); err == nil {
			w.Run(func(fresh config.ClientConfig) {
				level := logger.InfoLevel
				if fresh.Client.Debug {
					level = logger.DebugLevel
				}
				logger.SetGlobalLevel(level)
				log.Info().Msgf("log level switched to %v", level)
			})
			defer w.Close()
		} else {
			log.Warn().Err(err).Msg("config watching is off")
		}
	}

	app, err := client.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("client init failed")
	}
	app.SetCallEvents(call.Events{
		OnPhase: func(id string, phase call.Phase) {
			log.Info().Msgf("call %v is %v", id, phase)
		},
		OnQuality: func(id string, q call.QualitySample) {
			log.Info().Msgf("call %v quality: %v (loss %.1f%%, %.0f kbps)",
				id, q.Tier, q.LossPercent, q.BitrateKbps)
		},
		OnError: func(id string, err error) {
			log.Error().Err(err).Msgf("call %v", id)
		},
	})
	app.OnMessage(func(m api.Message) {
		log.Info().Msgf("[%v] %v: %v", m.ChatID, m.From, m.Body)
		if m.Attachment != nil {
			if path, err := app.DownloadAttachment(ctx, *m.Attachment); err == nil {
				log.Info().Msgf("attachment saved to %v", path)
			} else {
				log.Warn().Msgf("attachment skipped: %v", err)
			}
		}
	})
	app.OnConnectionFailed(func(f api.ConnectionFailed) {
		log.Error().Msgf("gave up reconnecting after %v attempts: %v", f.Attempts, f.Reason)
	})

	if err := app.Login(*token); err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	defer app.Logout()

	<-os.ExpectTermination()
	cancel()
}
