// Package process runs short-lived child processes one at a time.
//
// The exec audio backend uses it to play a clip with an external player
// (aplay, mpg123, ...): each Start launches one process, the process exits
// by itself when the clip ends, and Stop cuts it short.
//
// Features:
//   - One process at a time; Start while running is an error
//   - Own process group so Stop reaches grandchildren too
//   - SIGTERM, then SIGKILL after a grace period
//   - stdout/stderr captured into the debug log
//   - Status, PID and run statistics for health reporting
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "player",
//	    Binary: "/usr/bin/mpg123",
//	    Args:   []string{"-q"},
//	})
//
//	if err := mgr.Start(ctx, "/srv/clips/0007.mp3"); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
