package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/sosnet/realtime/config"
	"github.com/sosnet/realtime/src/api"
	"github.com/sosnet/realtime/src/conversation"
	"github.com/sosnet/realtime/src/session"
	"github.com/sosnet/realtime/src/types"
	"github.com/spf13/cobra"
)

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "credentials.json"
	}
	return filepath.Join(dir, "sosnet", "credentials.json")
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newLoginCmd() *cobra.Command {
	var token, credentials string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for the chat client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			client := api.New(api.Options{
				BaseURL: cfg.APIURL,
				Timeout: cfg.RequestTimeout,
				Tokens:  staticToken(token),
			}, newLogger())

			me, err := client.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}
			store := session.NewFileStore(credentials)
			if err := store.Save(&session.Credentials{User: *me, AccessToken: token}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", me.FullName, me.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token issued by the platform")
	cmd.Flags().StringVar(&credentials, "credentials", defaultCredentialsPath(), "credentials file")
	return cmd
}

func newChatCmd() *cobra.Command {
	var (
		taskID      int64
		contactID   int64
		credentials string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a task or direct conversation in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (taskID == 0) == (contactID == 0) {
				return errors.New("exactly one of --task or --contact is required")
			}
			scope := conversation.DirectScope(contactID)
			if taskID != 0 {
				scope = conversation.TaskScope(taskID)
			}

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			logger := newLogger()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sess, err := session.New(session.Options{
				Config: cfg,
				Store:  session.NewFileStore(credentials),
				Navigator: session.NavigatorFunc(func() {
					fmt.Fprintln(out, "session expired, run `responder login` again")
					stop()
				}),
			}, logger)
			if err != nil {
				return err
			}
			sess.Start(ctx)
			defer sess.Close()
			if sess.Identity().Role == types.RoleAdmin {
				refresh := sess.OnRefresh(func() { fmt.Fprintln(out, "* user list changed") })
				defer refresh()
			}

			p := &printer{out: out, self: sess.User().ID, seen: make(map[string]bool)}
			view := conversation.New(conversation.Options{
				Scope:       scope,
				Self:        sess.User().ID,
				Store:       sess.API(),
				Events:      sess.Router(),
				Viewport:    p,
				Notifier:    p,
				ScrollDelay: cfg.ScrollDelay,
			}, logger)
			p.view = view
			view.Open(ctx)
			defer view.Close()

			fmt.Fprintf(out, "chatting in %s as %s; /retry resends failed messages\n", scope, sess.User().FullName)
			return readInput(ctx, cmd.InOrStdin(), view)
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	cmd.Flags().Int64Var(&contactID, "contact", 0, "counterpart user id")
	cmd.Flags().StringVar(&credentials, "credentials", defaultCredentialsPath(), "credentials file")
	return cmd
}

func readInput(ctx context.Context, in io.Reader, view *conversation.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "/retry" {
				for _, e := range view.Messages() {
					if e.Status == conversation.StatusFailed {
						view.Retry(e.CorrelationID)
					}
				}
				continue
			}
			view.SetDraft(line)
			view.Submit()
		}
	}
}

// printer renders new entries when the view asks to scroll.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	self int64
	view *conversation.Controller
	seen map[string]bool
}

func (p *printer) ScrollToBottom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.view.Messages() {
		key := e.CorrelationID
		if key == "" {
			key = fmt.Sprintf("id:%d", e.ID)
		}
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		who := fmt.Sprintf("user %d", e.SenderID)
		if e.SenderID == p.self {
			who = "me"
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", e.CreatedAt.Format("15:04"), who, e.Content)
	}
}

func (p *printer) Alert(message string) {
	fmt.Fprintf(p.out, "! %s\n", message)
}
