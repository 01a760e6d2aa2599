package execution

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/edgewatch/edgewatch/internal/pkg/logger"
)

// KillSwitch halts new order submission when engaged. Monitoring and signal
// generation keep running regardless.
type KillSwitch interface {
	Engaged(ctx context.Context) bool
	Engage(ctx context.Context, reason string) error
	Release(ctx context.Context) error
}

// FileKillSwitch is the local fallback: the presence of a marker file engages
// it, so an operator with shell access can halt trading even when the control
// plane is down. The flag survives restarts.
type FileKillSwitch struct {
	path    string
	engaged atomic.Bool
}

func NewFileKillSwitch(path string) *FileKillSwitch {
	ks := &FileKillSwitch{path: path}
	if _, err := os.Stat(path); err == nil {
		ks.engaged.Store(true)
		logger.Warn("kill switch file present at startup, submissions halted", "path", path)
	}
	return ks
}

func (ks *FileKillSwitch) Engaged(ctx context.Context) bool {
	if ks.engaged.Load() {
		return true
	}
	if _, err := os.Stat(ks.path); err == nil {
		ks.engaged.Store(true)
		return true
	}
	return false
}

func (ks *FileKillSwitch) Engage(ctx context.Context, reason string) error {
	if err := os.WriteFile(ks.path, []byte(reason+"\n"), 0o644); err != nil {
		return err
	}
	ks.engaged.Store(true)
	logger.Warn("kill switch engaged", "reason", reason)
	return nil
}

func (ks *FileKillSwitch) Release(ctx context.Context) error {
	if err := os.Remove(ks.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	ks.engaged.Store(false)
	logger.Info("kill switch released")
	return nil
}

// CombinedKillSwitch joins the external control switch with the local
// fallback; either one engaged halts submissions.
type CombinedKillSwitch struct {
	remote KillSwitch
	local  KillSwitch
}

func NewCombinedKillSwitch(remote, local KillSwitch) *CombinedKillSwitch {
	return &CombinedKillSwitch{remote: remote, local: local}
}

func (ks *CombinedKillSwitch) Engaged(ctx context.Context) bool {
	if ks.local != nil && ks.local.Engaged(ctx) {
		return true
	}
	if ks.remote != nil && ks.remote.Engaged(ctx) {
		return true
	}
	return false
}

func (ks *CombinedKillSwitch) Engage(ctx context.Context, reason string) error {
	var firstErr error
	if ks.remote != nil {
		firstErr = ks.remote.Engage(ctx, reason)
	}
	if ks.local != nil {
		if err := ks.local.Engage(ctx, reason); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (ks *CombinedKillSwitch) Release(ctx context.Context) error {
	var firstErr error
	if ks.remote != nil {
		firstErr = ks.remote.Release(ctx)
	}
	if ks.local != nil {
		if err := ks.local.Release(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
