// Package client composes the sideline client: the session channel,
// capture, arbitration, playback, speech fallback, assist API, and the
// observer panel, driven from a terminal command loop.
package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fieldside/sideline/internal/config"
	"github.com/fieldside/sideline/pkg/arbiter"
	"github.com/fieldside/sideline/pkg/assist"
	"github.com/fieldside/sideline/pkg/audioio"
	"github.com/fieldside/sideline/pkg/capture"
	"github.com/fieldside/sideline/pkg/panel"
	"github.com/fieldside/sideline/pkg/playback"
	"github.com/fieldside/sideline/pkg/protocol"
	"github.com/fieldside/sideline/pkg/session"
	"github.com/fieldside/sideline/pkg/speech"
	"github.com/fieldside/sideline/pkg/tts"
)

// App wires the client together.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	channel   *session.Channel
	recorder  *capture.Recorder
	arb       *arbiter.Arbiter
	queue     *playback.Queue
	speaker   *speech.Speaker
	assistant *assist.Client
	panel     *panel.Server
	sink      audioio.Sink
	ttsChain  *tts.Chain
}

// New validates the configuration and creates the app.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Init builds and wires all components.
func (a *App) Init() error {
	if a.cfg.PanelAddr != "" {
		a.panel = panel.NewServer(a.cfg.PanelAddr, a.logger)
	}

	surface := newTerminalSurface(a.panel)
	a.assistant = assist.New(a.cfg.APIBase, a.logger)

	chain, err := a.buildTTSChain()
	if err != nil {
		return fmt.Errorf("build tts chain: %w", err)
	}
	a.ttsChain = chain

	sinkCfg := audioio.DefaultConfig()
	sinkCfg.SampleRate = wavPlaybackRate
	a.sink = audioio.NewMockSink(sinkCfg, a.logger)
	if err := a.sink.Start(context.Background()); err != nil {
		return fmt.Errorf("start audio sink: %w", err)
	}

	a.queue = playback.NewQueue(playback.NewSinkPlayer(a.sink), a.logger)
	a.speaker = speech.NewSpeaker(chain, a.queue, a.cfg.FallbackDelay, a.logger)
	a.arb = arbiter.New(surface, a.speaker, a.assistant, a.queue, a.logger)
	a.speaker.OnFire(a.arb.FallbackFired)

	a.queue.OnStatus(func(label string) {
		a.setStatus(label)
	})
	a.queue.OnBlocked(func() {
		fmt.Println("status> audio is blocked, type /unblock to enable playback")
	})
	a.speaker.OnStatus(func(label string) {
		a.setStatus(label)
	})
	a.speaker.OnError(surface.ShowError)

	a.channel = session.New(a.cfg.ServerURL, a.cfg.ReconnectDelay, session.Callbacks{
		OnConnected: func(id string) {
			if a.panel != nil {
				a.panel.SetSessionID(id)
			}
		},
		OnSetupComplete: func() {
			a.logger.Info("agent session ready")
		},
		OnText:          a.arb.HandleText,
		OnAudio:         a.arb.HandleAudio,
		OnTranscription: a.arb.HandleTranscription,
		OnNavigate:      a.arb.HandleNavigate,
		OnTurnComplete: func() {
			a.arb.HandleTurnComplete()
			a.publishTurnState()
		},
		OnToolCall: func(name string) {
			a.logger.Info("agent tool call", "tool", name)
		},
		OnErrorMsg: a.arb.HandleError,
		OnDisconnect: func(err error) {
			a.arb.HandleDisconnect()
			a.publishTurnState()
		},
	}, a.logger)

	a.channel.OnStatus(func(st session.Status) {
		a.setStatus(st.Label())
	})

	a.recorder = capture.NewRecorder(a.channel, a.logger)
	a.recorder.OnTurnStart(func(target capture.Target) {
		a.arb.BeginTurn(target)
		a.publishTurnState()
	})
	a.recorder.OnStatus(func(recording bool) {
		a.channel.SetRecording(recording)
		if a.panel != nil {
			a.panel.SetRecording(recording)
		}
	})

	return nil
}

// wavPlaybackRate is the sink rate for agent speech.
const wavPlaybackRate = 24000

func (a *App) buildTTSChain() (*tts.Chain, error) {
	var providers []tts.Provider

	if a.cfg.ElevenLabsKey != "" && a.cfg.ElevenLabsVoiceID != "" {
		eleven, err := tts.NewElevenLabs(a.cfg.ElevenLabsKey, a.cfg.ElevenLabsVoiceID)
		if err != nil {
			return nil, err
		}
		providers = append(providers, eleven)
	} else {
		a.logger.Warn("no ElevenLabs credentials, speech fallback synthesizes silence")
	}

	// Mock tail keeps the fallback path alive without credentials.
	providers = append(providers, tts.NewMock())
	return tts.NewChain(providers...)
}

// Run starts the session and serves the command loop until ctx is
// canceled or the user quits.
func (a *App) Run(ctx context.Context) error {
	if a.panel != nil {
		go func() {
			if err := a.panel.Start(); err != nil {
				a.logger.Error("panel server failed", "error", err)
			}
		}()
	}

	go a.channel.Run(ctx)

	fmt.Println("sideline ready. Commands: /rec chat|nav, /stop, /say <text>, /ask <text>, /upload <path>, /unblock, /quit")
	return a.commandLoop(ctx)
}

func (a *App) commandLoop(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.handleCommand(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (a *App) handleCommand(ctx context.Context, line string) (quit bool) {
	if line == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/rec":
		target := capture.TargetPrimaryChat
		if arg == "nav" {
			target = capture.TargetNavAssist
		}
		src := audioio.NewMockSource(audioio.DefaultConfig(), a.logger)
		if err := a.recorder.Start(ctx, src, target); err != nil {
			fmt.Printf("error> %v\n", err)
		}

	case "/stop":
		a.recorder.Stop()

	case "/say":
		if arg == "" {
			fmt.Println("usage: /say <text>")
			return false
		}
		fmt.Printf("you> %s\n", arg)
		if a.panel != nil {
			a.panel.AddConversation("user", arg)
		}
		a.arb.BeginTurn(capture.TargetPrimaryChat)
		a.publishTurnState()
		if err := a.channel.Send(protocol.NewText(arg, []string{"audio", "text"})); err != nil {
			fmt.Printf("error> message not sent: %v\n", err)
		}

	case "/ask":
		if arg == "" {
			fmt.Println("usage: /ask <text>")
			return false
		}
		go a.runQuery(ctx, arg)

	case "/upload":
		if arg == "" {
			fmt.Println("usage: /upload <path>")
			return false
		}
		go a.runUpload(ctx, arg)

	case "/unblock":
		a.queue.Unblock()

	case "/quit":
		return true

	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	return false
}

func (a *App) runQuery(ctx context.Context, message string) {
	fmt.Printf("you> %s\n", message)
	resp, err := a.assistant.Query(ctx, assist.QueryRequest{
		Message:   message,
		SessionID: a.channel.SessionID(),
	})
	if err != nil {
		fmt.Printf("error> query failed: %v\n", err)
		return
	}
	fmt.Printf("assistant> %s\n", resp.Content)
	if resp.TargetRoute != "" {
		fmt.Printf("navigate> %s\n", resp.TargetRoute)
	}
	if a.panel != nil {
		a.panel.AddConversation("user", message)
		a.panel.AddConversation("bot", resp.Content)
	}
}

func (a *App) runUpload(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("error> %v\n", err)
		return
	}
	defer f.Close()

	resp, err := a.assistant.Upload(ctx, path, f)
	if err != nil {
		fmt.Printf("error> upload failed: %v\n", err)
		return
	}
	fmt.Printf("status> uploaded %s: %s\n", resp.Filename, resp.Status)
}

func (a *App) setStatus(label string) {
	fmt.Printf("status> %s\n", label)
	if a.panel != nil {
		a.panel.SetSessionStatus(label)
	}
}

func (a *App) publishTurnState() {
	if a.panel != nil {
		a.panel.SetTurnState(a.arb.State().String())
		a.panel.SetQueueDepth(a.queue.Len())
	}
}

// Shutdown stops every component.
func (a *App) Shutdown() {
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.channel != nil {
		a.channel.Close()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.ttsChain != nil {
		a.ttsChain.Close()
	}
	if a.panel != nil {
		a.panel.Shutdown()
	}
}
