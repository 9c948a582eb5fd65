package jobs

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const redfishJobsPath = "redfish/v1/Oem/DiagService/Jobs"

// RedfishFactory builds launchers polling a controller's own diagnostic
// job endpoint, without the relay indirection. The target name doubles
// as the controller hostname.
type RedfishFactory struct {
	Scheme   string // "https" (default) or "http"
	Port     int    // defaults to 443
	Insecure bool   // accept self-signed controller certificates
	Token    string
	Timeout  time.Duration // per round trip, defaults to defaultCallTimeout
}

func (f RedfishFactory) Launcher(target string) (Launcher, error) {
	scheme := f.Scheme
	if scheme == "" {
		scheme = "https"
	}
	port := f.Port
	if port == 0 {
		port = 443
	}

	base := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(target, strconv.Itoa(port)),
	}

	timeout := f.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if f.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &RedfishClient{
		base:  base,
		token: f.Token,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// RedfishClient drives one diagnostic job directly on a controller.
type RedfishClient struct {
	base   *url.URL
	token  string
	client *http.Client
}

func (c *RedfishClient) Submit(ctx context.Context, targets []string, command string, args []string) (Handle, error) {
	return submitCall(ctx, c.client, c.token, c.base.JoinPath(redfishJobsPath).String(), targets, command, args)
}

func (c *RedfishClient) LaunchStatus(ctx context.Context, h Handle, target string) (LaunchDecision, error) {
	return launchCall(ctx, c.client, c.token, c.base.JoinPath(redfishJobsPath, string(h)).String(), target)
}

func (c *RedfishClient) RunStatus(ctx context.Context, h Handle, target string) (RunStatus, error) {
	return runCall(ctx, c.client, c.token, c.base.JoinPath(redfishJobsPath, string(h), "tasks", target).String())
}

func (c *RedfishClient) Delete(ctx context.Context, h Handle) error {
	return deleteCall(ctx, c.client, c.token, c.base.JoinPath(redfishJobsPath, string(h)).String())
}

func (c *RedfishClient) Close() {
	c.client.CloseIdleConnections()
}
