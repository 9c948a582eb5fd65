package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const relayJobsPath = "v1/jobs"

// RelayFactory builds launchers talking to the central job relay service,
// which forwards diagnostic requests to the controllers it manages.
type RelayFactory struct {
	URL     string
	Token   string
	Timeout time.Duration // per round trip, defaults to defaultCallTimeout
}

func (f RelayFactory) Launcher(_ string) (Launcher, error) {
	parsedURL, err := url.Parse(f.URL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the relay url with a scheme and without path, e.g. `http://some-url.com`")
	}

	timeout := f.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	return &RelayClient{
		base:   parsedURL,
		token:  f.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// RelayClient drives one diagnostic job through the relay service.
type RelayClient struct {
	base   *url.URL
	token  string
	client *http.Client
}

func (c *RelayClient) Submit(ctx context.Context, targets []string, command string, args []string) (Handle, error) {
	return submitCall(ctx, c.client, c.token, c.base.JoinPath(relayJobsPath).String(), targets, command, args)
}

func (c *RelayClient) LaunchStatus(ctx context.Context, h Handle, target string) (LaunchDecision, error) {
	return launchCall(ctx, c.client, c.token, c.base.JoinPath(relayJobsPath, string(h)).String(), target)
}

func (c *RelayClient) RunStatus(ctx context.Context, h Handle, target string) (RunStatus, error) {
	return runCall(ctx, c.client, c.token, c.base.JoinPath(relayJobsPath, string(h), "tasks", target).String())
}

func (c *RelayClient) Delete(ctx context.Context, h Handle) error {
	return deleteCall(ctx, c.client, c.token, c.base.JoinPath(relayJobsPath, string(h)).String())
}

func (c *RelayClient) Close() {
	c.client.CloseIdleConnections()
}
