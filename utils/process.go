package utils

import (
	"context"
	"errors"
	"syscall"
	"time"
)

const groupPollInterval = 50 * time.Millisecond

// GroupAlive reports whether any member of the process group pgid still exists.
func GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	err := syscall.Kill(-pgid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// TerminateGroup sends SIGTERM to the process group led by pgid and gives the
// whole group gracePeriod to exit before sending SIGKILL. A member that
// ignores SIGTERM keeps the group alive and gets killed with the rest.
// The leader must have been started with Setpgid.
func TerminateGroup(ctx context.Context, pgid int, gracePeriod time.Duration) error {
	if pgid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	if waitGroupExit(ctx, pgid, gracePeriod) {
		return nil
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// waitGroupExit polls until the group is empty (true), or until the grace
// period or ctx runs out (false).
func waitGroupExit(ctx context.Context, pgid int, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(groupPollInterval)
	defer ticker.Stop()
	for {
		if !GroupAlive(pgid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case <-ticker.C:
		}
	}
}
