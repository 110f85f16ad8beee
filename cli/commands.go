package cli

var (
	Version   = ""
	CommitSHA = ""
)

// Globals defines global flags available to all commands.
type Globals struct {
	Telemetry bool `help:"Show timing telemetry after a run."`
}

type Commands struct {
	Globals

	Run   RunCmd   `cmd:"" default:"withargs" help:"Reconcile CSV exports against the remote ledger."`
	Watch WatchCmd `cmd:"" help:"Watch the input directory and reconcile when new exports land."`
}
