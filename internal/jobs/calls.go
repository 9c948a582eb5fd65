package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Round trips shared by both backends. Every call is one bounded HTTP
// exchange; a hang surfaces as a TransportError for that call only.

const maxBodySize = 1 << 20

func submitCall(ctx context.Context, c *http.Client, token, url string, targets []string, command string, args []string) (Handle, error) {
	const op = "submit"
	target := strings.Join(targets, ",")

	raw, err := json.Marshal(submitBody{
		Targets: targets,
		JobName: command,
		Options: strings.Join(args, " "),
	})
	if err != nil {
		return "", &SubmissionError{Target: target, Reason: fmt.Sprintf("encoding request: %v", err)}
	}

	req, err := newRequest(ctx, http.MethodPost, url, bytes.NewReader(raw), token)
	if err != nil {
		return "", &SubmissionError{Target: target, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	defer drainClose(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return decodeSubmitBody(target, body)
	default:
		return "", &SubmissionError{Target: target, Reason: rejectionReason(resp.StatusCode, body)}
	}
}

// rejectionReason extracts the detail field from a problem-style error
// body, falling back to the raw body.
func rejectionReason(status int, body []byte) string {
	var problem struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &problem); err == nil {
		if problem.Detail != "" {
			return fmt.Sprintf("status %d: %s", status, problem.Detail)
		}
		if problem.Message != "" {
			return fmt.Sprintf("status %d: %s", status, problem.Message)
		}
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}

func launchCall(ctx context.Context, c *http.Client, token, url, target string) (LaunchDecision, error) {
	const op = "launch status"

	body, err := getCall(ctx, c, token, url, op)
	if err != nil {
		return LaunchDecision{}, err
	}
	return decodeLaunchBody(op, target, body)
}

func runCall(ctx context.Context, c *http.Client, token, url string) (RunStatus, error) {
	const op = "run status"

	body, err := getCall(ctx, c, token, url, op)
	if err != nil {
		return RunStatus{}, err
	}
	return decodeRunBody(op, body)
}

func getCall(ctx context.Context, c *http.Client, token, url, op string) ([]byte, error) {
	req, err := newRequest(ctx, http.MethodGet, url, nil, token)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer drainClose(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	return body, nil
}

func deleteCall(ctx context.Context, c *http.Client, token, url string) error {
	const op = "delete"

	req, err := newRequest(ctx, http.MethodDelete, url, nil, token)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	resp, err := c.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	// fire and forget, response ignored
	drainClose(resp)
	return nil
}
