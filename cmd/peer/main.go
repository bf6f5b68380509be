// Command peer is a terminal chat client: it joins a room, relays stdin lines
// as messages and can place or answer calls with generated media.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/client"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/peer"
)

type options struct {
	url      string
	user     string
	name     string
	room     string
	call     string
	video    bool
	answer   bool
	ice      []string
	logLevel string
}

func parseFlags() options {
	var o options
	pflag.StringVar(&o.url, "url", "ws://localhost:8080/api/ws", "signaling websocket URL")
	pflag.StringVar(&o.user, "user", "", "user id (required)")
	pflag.StringVar(&o.name, "name", "", "display name")
	pflag.StringVar(&o.room, "room", "general", "room to join")
	pflag.StringVar(&o.call, "call", "", "user id to call after connecting")
	pflag.BoolVar(&o.video, "video", false, "place a video call instead of audio")
	pflag.BoolVar(&o.answer, "answer", true, "accept incoming calls")
	pflag.StringSliceVar(&o.ice, "ice", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	pflag.StringVar(&o.logLevel, "log-level", "info", "log level")
	pflag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(opts.logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if opts.user == "" {
		log.Fatal().Msg("--user is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Options{
		URL:         opts.url,
		UserID:      domain.UserID(opts.user),
		DisplayName: opts.name,
	})
	defer c.Close()

	c.WatchState(func(s client.State) {
		if s == client.StateReconnecting {
			fmt.Println("* connection lost, reconnecting")
		}
	})

	rid := domain.RoomID(opts.room)
	timeline := client.NewTimeline(client.DefaultTolerance)
	defer timeline.Follow(c, rid)()

	defer client.On(c, core.EvReceiveMessage, func(e core.MessageEvent) {
		if e.Message.RoomID == rid && e.Message.SenderID != c.UserID() {
			fmt.Printf("[%s] %s: %s\n", e.Message.RoomID, e.Message.SenderName, e.Message.Content)
		}
	})()
	defer client.On(c, core.EvRosterChanged, func(e core.RosterChanged) {
		fmt.Printf("* %s: %d online\n", e.RoomID, e.OnlineCount)
	})()
	defer client.On(c, core.EvUserTyping, func(e core.UserTyping) {
		fmt.Printf("* %s is typing\n", e.DisplayName)
	})()

	var calls *client.Calls
	calls = client.NewCalls(c, client.CallOptions{
		NewPeerConnection: rtc.Factory(rtc.DefaultWebRTCConfig(opts.ice), opts.user),
		AcquireMedia:      acquire(ctx),
		OnIncoming: func(e core.CallNotice) {
			fmt.Printf("* %s is calling (%s)\n", e.CallerID, e.CallType)
			if !opts.answer {
				_ = calls.Reject(e.CallID, core.ReasonBusy)
				return
			}
			if _, err := calls.Accept(e.CallID); err != nil {
				fmt.Printf("* accept failed: %v\n", err)
			}
		},
		OnState: func(id domain.CallID, s peer.State, err error) {
			fmt.Printf("* call %s: %s\n", id, s)
			if err != nil {
				fmt.Printf("* call %s failed: %v\n", id, err)
			}
		},
		OnRemoteTrack: func(id domain.CallID, t *webrtc.TrackRemote) {
			fmt.Printf("* call %s: receiving %s (%s)\n", id, t.Kind(), t.Codec().MimeType)
			go drain(t)
		},
		OnEnded: func(e core.CallNotice) {
			fmt.Printf("* call %s %s (%s)\n", e.CallID, e.Type, e.Reason)
		},
	})
	defer calls.Close()

	if err := c.JoinRoom(rid); err != nil {
		log.Fatal().Err(err).Msg("join")
	}

	go func() {
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("client stopped")
		}
		cancel()
	}()

	if opts.call != "" {
		go dial(ctx, c, calls, domain.UserID(opts.call), opts.video)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleLine(c, calls, timeline, rid, strings.TrimSpace(line))
		}
	}
}

func handleLine(c *client.Client, calls *client.Calls, tl *client.Timeline, rid domain.RoomID, line string) {
	switch {
	case line == "":
	case line == "/hangup":
		for _, key := range calls.Keys() {
			_ = calls.Hangup(key)
		}
	case line == "/mute":
		for _, key := range calls.Keys() {
			if n := calls.Active(key); n != nil {
				fmt.Printf("* audio on: %v\n", n.ToggleAudio())
			}
		}
	case line == "/history":
		for _, e := range tl.Entries() {
			mark := ""
			if e.Pending {
				mark = " (sending)"
			}
			fmt.Printf("  %s: %s%s\n", e.Message.SenderID, e.Message.Content, mark)
		}
	default:
		tempID := uuid.NewString()
		tl.AddPending(tempID, c.UserID(), line)
		if err := c.SendMessage(rid, tempID, line); err != nil {
			fmt.Printf("* not sent: %v\n", err)
		}
	}
}

func dial(ctx context.Context, c *client.Client, calls *client.Calls, to domain.UserID, video bool) {
	for c.State() != client.StateConnected {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	ct := domain.CallAudio
	if video {
		ct = domain.CallVideo
	}
	n, err := calls.Dial(to, ct)
	if err != nil {
		fmt.Printf("* call failed: %v\n", err)
		return
	}
	fmt.Printf("* ringing %s on %s\n", to, n.RoomKey())
}

// acquire returns generated media that streams Opus silence while the call
// is up.
func acquire(ctx context.Context) func(domain.CallType) (peer.LocalMedia, error) {
	return func(ct domain.CallType) (peer.LocalMedia, error) {
		m, err := rtc.NewLocalMedia(ct)
		if err != nil {
			return nil, err
		}
		go func() {
			t := time.NewTicker(20 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if m.Stopped() {
						return
					}
					_ = m.WriteAudio(rtc.OpusSilence, 20*time.Millisecond)
				}
			}
		}()
		return m, nil
	}
}

func drain(t *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := t.Read(buf); err != nil {
			return
		}
	}
}
