package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	goahttp "goa.design/goa/v3/http"
)

// client talks to the forestwatch HTTP API
type client struct {
	base  *url.URL
	doer  goahttp.Doer
	token string
}

func newClient(scheme, host string, timeout int, debug bool, token string) *client {
	var (
		doer goahttp.Doer
	)
	{
		doer = &http.Client{Timeout: time.Duration(timeout) * time.Second}
		if debug {
			doer = goahttp.NewDebugDoer(doer)
		}
	}
	return &client{base: &url.URL{Scheme: scheme, Host: host}, doer: doer, token: token}
}

// call sends body (if any) as JSON and decodes a 2xx response into out
func (c *client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Name    string `json:"name"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		goahttp.ResponseDecoder(resp).Decode(&e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		return fmt.Errorf("%s %s: %s %s", method, path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	return goahttp.ResponseDecoder(resp).Decode(out)
}
