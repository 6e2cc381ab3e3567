package cli

// Indirection points so tests can replace the command actions.
var (
	fnRun     = runValidation
	fnDeploy  = runDeploy
	fnMonitor = runMonitor
	fnStub    = runStub
)
