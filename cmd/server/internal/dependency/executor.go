package dependency

import "context"

// DependencyExecutor runs one external command.
//
// Implementations:
//   - LocalExecutor: os/exec on this host
//   - RemoteExecutor: HTTP call to the command-runner sidecar
//   - FallbackExecutor: remote first, local when the sidecar is unreachable
type DependencyExecutor interface {
	// ExecuteCommand runs req and returns its captured output.
	// Cancelling ctx must terminate the command promptly.
	ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error)

	// HealthCheck reports whether the executor can serve requests.
	HealthCheck(ctx context.Context) error
}
