package jobs

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Handle is the opaque identifier the remote job service assigns to one
// submitted diagnostic job.
type Handle string

// Launcher is the job-submission service as seen by a single diagnostic
// task. Implementations are stateless request/response clients; all
// lifecycle tracking lives with the caller.
type Launcher interface {
	// Submit asks the remote to start the diagnostic on the given targets
	// and returns the job handle.
	Submit(ctx context.Context, targets []string, command string, args []string) (Handle, error)

	// LaunchStatus reports whether the remote produced a launch decision
	// for the target yet. An undecided answer is not an error.
	LaunchStatus(ctx context.Context, h Handle, target string) (LaunchDecision, error)

	// RunStatus returns the current task status envelope.
	RunStatus(ctx context.Context, h Handle, target string) (RunStatus, error)

	// Delete removes the remote job. Best-effort, callers ignore failures.
	Delete(ctx context.Context, h Handle) error

	// Close releases the connection owned by this client.
	Close()
}

// Factory mints one Launcher per target so that every task exclusively
// owns its outbound connection.
type Factory interface {
	Launcher(target string) (Launcher, error)
}

// LaunchDecision is the launch phase outcome for one target.
type LaunchDecision struct {
	Decided bool   // false means the remote has not decided yet
	OK      bool   // valid only when Decided
	State   string // remote-reported launch state
	Message string
	Raw     []byte // outer body, kept for diagnostics
}

// RunStatus is the run phase status for one target, decoded from the
// double-encoded message envelope.
type RunStatus struct {
	State     string
	StartTime string
	EndTime   string
	Messages  []string
	Raw       []byte // outer body, kept for diagnostics
}

const defaultCallTimeout = 10 * time.Second

func newRequest(ctx context.Context, method, url string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
