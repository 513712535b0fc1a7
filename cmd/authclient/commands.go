package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/MrEthical07/authclient"
	"github.com/spf13/cobra"
)

func loginCmd(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("AUTHCLIENT_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}
			client, done, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			s, err := client.Login(cmd.Context(), map[string]string{"username": username, "password": password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", username)
			if len(s.Roles) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "roles: %s\n", strings.Join(s.Roles, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (or AUTHCLIENT_PASSWORD)")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session on the server and forget it locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			client.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func whoamiCmd(opts *options) *cobra.Command {
	var fetch bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored profile and roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			if !client.IsAuthenticated() {
				return authclient.ErrNotAuthenticated
			}
			user := client.User()
			if fetch {
				if user, err = client.FetchProfile(cmd.Context()); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if err := writeJSON(out, user); err != nil {
				return err
			}
			fmt.Fprintf(out, "roles: %s\n", strings.Join(client.Roles(), ", "))
			fmt.Fprintf(out, "admin: %t\n", client.IsAdmin())
			return nil
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "reload the profile from the server first")
	return cmd
}

func refreshCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			if err := client.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "access token refreshed")
			return nil
		},
	}
}

func requestCmd(opts *options) *cobra.Command {
	var (
		data    string
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request and print the response body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			req := authclient.NewRequest(method, args[1], nil)
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				req = authclient.NewRequest(method, args[1], []byte(data)).
					WithHeader("Content-Type", "application/json")
			}
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want Key: Value", h)
				}
				req = req.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v))
			}

			client, done, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			resp, err := client.Do(cmd.Context(), req)
			if err != nil {
				var respErr *authclient.ResponseError
				if errors.As(err, &respErr) && len(respErr.Body) > 0 {
					_ = writeJSON(cmd.ErrOrStderr(), respErr.Body)
				}
				return err
			}
			if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), resp.Body)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header, Key: Value (repeatable)")
	return cmd
}

// writeJSON pretty-prints raw when it is JSON and copies it otherwise.
func writeJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
