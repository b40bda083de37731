package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stockroom.org/internal/config"
)

func newSmokeCmd() *cobra.Command {
	var (
		addr     string
		email    string
		password string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run a receipt/issue round trip against a running API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c := &smokeClient{base: strings.TrimRight(addr, "/"), http: &http.Client{Timeout: timeout}}
			catalog, err := runSmoke(ctx, c, email, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "smoke test passed: catalog=%s\n", catalog)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("STOCKROOM_API_ADDR", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&email, "email", os.Getenv(config.EnvAdminEmail), "login email")
	cmd.Flags().StringVar(&password, "password", os.Getenv(config.EnvAdminPassword), "login password")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type smokeClient struct {
	base  string
	token string
	http  *http.Client
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (c *smokeClient) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// runSmoke receives 1000 units, issues 420, expects 580, expects an
// over-issue to be refused and removes what it created.
func runSmoke(ctx context.Context, c *smokeClient, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required (%s/%s)", config.EnvAdminEmail, config.EnvAdminPassword)
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/auth/token", map[string]string{"email": email, "password": password}, &tok); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.token = tok.Token

	catalog := "smoke-" + uuid.NewString()[:8]
	today := time.Now().UTC().Format("2006-01-02")
	entry := func(in, out int64) map[string]any {
		return map[string]any{
			"catalogName":             catalog,
			"receiptDate":             today,
			"quantityReceived":        in,
			"deliveryDate":            today,
			"issueQuantity":           out,
			"distributionDestination": "smoke",
			"requester":               "stockctl",
		}
	}

	var created []string
	defer func() {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		for i := len(created) - 1; i >= 0; i-- {
			_ = c.call(cleanup, http.MethodDelete, "/v1/catalog-entries/"+created[i], nil, nil)
		}
	}()

	for _, e := range []map[string]any{entry(1000, 0), entry(0, 420)} {
		var res struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := c.call(ctx, http.MethodPost, "/v1/catalog-entries", e, &res); err != nil {
			return catalog, fmt.Errorf("create entry: %w", err)
		}
		created = append(created, res.ID)
		if res.Status != "ok" {
			return catalog, fmt.Errorf("entry %s committed with trail status %q", res.ID, res.Status)
		}
	}

	var bal struct {
		Stock int64 `json:"stock"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/catalogs/"+catalog+"/balance", nil, &bal); err != nil {
		return catalog, fmt.Errorf("balance: %w", err)
	}
	if bal.Stock != 580 {
		return catalog, fmt.Errorf("stock=%d, want 580", bal.Stock)
	}

	err := c.call(ctx, http.MethodPost, "/v1/catalog-entries", entry(0, 581), nil)
	if se, ok := err.(*statusError); !ok || se.Status != http.StatusConflict {
		return catalog, fmt.Errorf("over-issue was not refused: %v", err)
	}
	return catalog, nil
}
