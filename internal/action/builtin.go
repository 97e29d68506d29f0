package action

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/stepherg/sonosgw/internal/discovery"
)

// RegisterBuiltins adds the basic transport, volume and state actions.
func RegisterBuiltins(r *Registry, d discovery.Service) {
	r.MustRegister("play", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.Play(ctx)
	})
	r.MustRegister("pause", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.Pause(ctx)
	})
	r.MustRegister("playpause", playPause)
	r.MustRegister("next", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.Next(ctx)
	})
	r.MustRegister("previous", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.Previous(ctx)
	})
	r.MustRegister("volume", volume)
	r.MustRegister("mute", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.SetMute(ctx, true)
	})
	r.MustRegister("unmute", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.SetMute(ctx, false)
	})
	r.MustRegister("togglemute", func(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
		return Ack(), p.SetMute(ctx, !p.State().Mute)
	})
	r.MustRegister("state", func(_ context.Context, p discovery.Player, _ []string) (Result, error) {
		return Value(p.State()), nil
	})
	r.MustRegister("zones", func(context.Context, discovery.Player, []string) (Result, error) {
		return Value(d.Zones()), nil
	})
}

func playPause(ctx context.Context, p discovery.Player, _ []string) (Result, error) {
	if p.State().PlaybackState == discovery.StatePlaying {
		return Value(map[string]bool{"paused": true}), p.Pause(ctx)
	}
	return Value(map[string]bool{"paused": false}), p.Play(ctx)
}

// volume accepts an absolute level ("35") or a relative step ("+5", "-5").
func volume(ctx context.Context, p discovery.Player, args []string) (Result, error) {
	if len(args) == 0 || args[0] == "" {
		return Result{}, errors.New("volume requires a level")
	}
	arg := args[0]
	n, err := strconv.Atoi(arg)
	if err != nil {
		return Result{}, errors.Wrapf(err, "invalid volume %q", arg)
	}
	level := n
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		level = p.State().Volume + n
	}
	if level < 0 {
		level = 0
	} else if level > 100 {
		level = 100
	}
	return Ack(), p.SetVolume(ctx, level)
}
