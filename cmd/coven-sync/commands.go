// ABOUTME: One-shot subcommands: token, conversations, export, upload and secrets
// ABOUTME: Each acts on behalf of the owner given with --owner

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-sync/internal/conversation"
	"github.com/2389/coven-sync/internal/httpapi"
	"github.com/2389/coven-sync/internal/integration"
	"github.com/2389/coven-sync/internal/session"
	"github.com/2389/coven-sync/internal/transcript"
	"github.com/2389/coven-sync/internal/upload"
)

func requireOwner(cmd *cobra.Command, owner *string) {
	cmd.Flags().StringVar(owner, "owner", "", "owner (profile) id to act as")
	_ = cmd.MarkFlagRequired("owner")
}

func newTokenCmd(c *cli) *cobra.Command {
	var owner string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer session token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			token, err := session.NewVerifier([]byte(c.cfg.Auth.JWTSecret)).Generate(owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	requireOwner(cmd, &owner)
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newConversationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List or delete stored conversations",
	}

	var owner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List an owner's conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			records, err := svc.conversations.FetchAll(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				color.New(color.FgHiBlack).Fprintln(c.out, "no conversations")
				return nil
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, color.New(color.Bold).Sprint("AGENT\tNAME\tUPDATED\tMESSAGES\tPREVIEW"))
			for _, rec := range records {
				chat := conversation.ToChatSummary(rec, httpapi.DefaultAgentName, httpapi.DefaultPreview)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					color.CyanString(rec.AgentID), chat.Name, chat.LastUpdated, len(rec.Messages), chat.Preview)
			}
			return tw.Flush()
		},
	}
	requireOwner(list, &owner)

	var delOwner string
	del := &cobra.Command{
		Use:   "delete AGENT_ID",
		Short: "Delete the conversation with one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.conversations.Delete(cmd.Context(), delOwner, args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(c.out, "deleted conversation with %s\n", args[0])
			return nil
		},
	}
	requireOwner(del, &delOwner)

	cmd.AddCommand(list, del)
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var owner, output string

	cmd := &cobra.Command{
		Use:   "export AGENT_ID",
		Short: "Export a conversation as an HTML transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.conversations.Get(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no conversation with agent %q", args[0])
			}

			if output == "" || output == "-" {
				return transcript.Render(c.out, *rec, httpapi.DefaultAgentName)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := transcript.Render(f, *rec, httpapi.DefaultAgentName); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(c.errOut, "wrote %s\n", output)
			return nil
		},
	}
	requireOwner(cmd, &owner)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newUploadCmd(c *cli) *cobra.Command {
	var owner, conversationID, mimeType string
	var durationMs float64

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload an audio file as a message in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(args[0]))
			}
			if mimeType == "" {
				mimeType = "audio/webm"
			}

			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			pipeline, err := svc.pipeline(session.Static{OwnerID: owner})
			if err != nil {
				return err
			}
			res, err := pipeline.UploadAudio(cmd.Context(), upload.Request{
				ConversationID: conversationID,
				Data:           data,
				MimeType:       mimeType,
				DurationMs:     durationMs,
			})
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			green.Fprint(c.out, "    ▶ ")
			fmt.Fprintf(c.out, "Message:  %s\n", res.MessageID)
			green.Fprint(c.out, "    ▶ ")
			fmt.Fprintf(c.out, "Path:     %s\n", res.StoragePath)
			green.Fprint(c.out, "    ▶ ")
			fmt.Fprintf(c.out, "URL:      %s\n", res.SignedURL)
			return nil
		},
	}
	requireOwner(cmd, &owner)
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	cmd.Flags().StringVar(&mimeType, "mime", "", "content type (default from file extension)")
	cmd.Flags().Float64Var(&durationMs, "duration-ms", 0, "recording duration in milliseconds")
	return cmd
}

func newSecretsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Show or replace an owner's webhook integration secret",
	}

	var showOwner string
	var reveal bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored integration secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec := svc.secrets.Read(showOwner)
			if rec == nil {
				color.New(color.FgHiBlack).Fprintln(c.out, "no integration configured")
				return nil
			}
			if !reveal {
				rec = masked(rec)
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	requireOwner(show, &showOwner)
	show.Flags().BoolVar(&reveal, "reveal", false, "print credentials in the clear")

	var setOwner string
	var payload integration.Payload
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the integration secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.secrets.Write(setOwner, payload)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(c.out, "saved %s integration for %s\n", rec.AuthType, setOwner)
			return nil
		},
	}
	requireOwner(set, &setOwner)
	set.Flags().StringVar(&payload.WebhookURL, "webhook-url", "", "webhook URL")
	set.Flags().StringVar(&payload.AuthType, "auth-type", "none", "none, apiKey, basic or oauth")
	set.Flags().StringVar(&payload.APIKey, "api-key", "", "API key (apiKey mode)")
	set.Flags().StringVar(&payload.BasicAuthUsername, "username", "", "username (basic mode)")
	set.Flags().StringVar(&payload.BasicAuthPassword, "password", "", "password (basic mode)")
	set.Flags().StringVar(&payload.OAuthToken, "oauth-token", "", "bearer token (oauth mode)")

	cmd.AddCommand(show, set)
	return cmd
}

// masked copies rec with every credential reduced to its last four characters.
func masked(rec *integration.Record) *integration.Record {
	out := *rec
	mask := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := *s
		if len(v) > 4 {
			v = strings.Repeat("*", len(v)-4) + v[len(v)-4:]
		} else {
			v = strings.Repeat("*", len(v))
		}
		return &v
	}
	out.APIKey = mask(rec.APIKey)
	out.BasicPassword = mask(rec.BasicPassword)
	out.OAuthToken = mask(rec.OAuthToken)
	return &out
}
