// Package process runs the external tools wlddc depends on (wlr-randr,
// ddcutil) as short-lived subprocesses.
//
// Every call is bounded by a timeout and runs in its own process group, so a
// hung DDC/CI transaction is killed together with anything it spawned.
// Failures are classified into ErrNotFound, ErrTimeout and ErrExit so that
// callers can map them onto their own error taxonomy.
//
// Example usage:
//
//	runner := process.NewExec(10 * time.Second)
//	out, err := runner.Run(ctx, "ddcutil", "getvcp", "10", "--bus", "7", "--brief")
//	if errors.Is(err, process.ErrNotFound) {
//	    // ddcutil is not installed
//	}
package process
