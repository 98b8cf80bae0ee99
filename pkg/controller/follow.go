package controller

import (
	"context"
	"errors"

	"github.com/user/framecue/pkg/remote"
)

// Follow applies remote commands until ctx is done or cmds is closed.
// Timecodes become scrubs with the remote debounce window; video changes are
// loaded in the background so the command stream keeps draining.
func (c *Controller) Follow(ctx context.Context, cmds <-chan remote.Command) {
	for {
		var cmd remote.Command
		select {
		case <-ctx.Done():
			return
		case next, ok := <-cmds:
			if !ok {
				return
			}
			cmd = next
		}

		switch cmd.Kind {
		case remote.SeekCommand:
			c.enqueue(cmd.Frame, c.opts.RemoteDebounce)

		case remote.LoadCommand:
			loc, err := c.resolver.ResolveRemote(cmd.VideoPath)
			if err != nil {
				c.failLoad(cmd.VideoPath, err)
				continue
			}
			if info, ok := c.Info(); ok && info.Location == loc {
				c.log.Debug("Already showing %s", loc)
				continue
			}
			if !c.goBackground(func() {
				if err := c.LoadLocation(ctx, loc); err != nil && !errors.Is(err, ErrSuperseded) {
					c.log.Debug("Remote load of %s did not complete: %v", loc, err)
				}
			}) {
				return
			}

		case remote.PlayCommand, remote.PauseCommand:
			playing := cmd.Kind == remote.PlayCommand
			c.mu.Lock()
			c.remotePlay = playing
			c.mu.Unlock()
			c.log.Info("Remote playback %s", cmd.Kind)
		}
	}
}

func (c *Controller) goBackground(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
	return true
}
