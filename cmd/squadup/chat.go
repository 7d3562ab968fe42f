package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/christmas-fire/squadup/internal/client"
	"github.com/christmas-fire/squadup/internal/logger"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/chzyer/readline"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var chatCfg client.Config

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a group conversation from the terminal",
	Long: `chat loads the group's history, then streams new messages, status
changes and votes. Lines are sent as messages; commands start with a slash:

  /read <id>          mark a message read
  /vote <id> <n>      vote for option n (1-based) of a poll
  /retry <corr>       resend a failed message
  /list               reprint the timeline
  /quit               leave`,
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&chatCfg.ServerURL, "server", "http://localhost:5000", "Server base URL")
	f.StringVar(&chatCfg.Token, "token", "", "Bearer token from login")
	f.StringVar(&chatCfg.GroupID, "group", "", "Group to join")
	f.StringVar(&chatCfg.UserID, "user", "", "Your user id")
	f.StringVar(&chatCfg.Name, "name", "", "Display name")
	f.StringVar(&chatCfg.Email, "email", "", "Email shown next to your messages")
	_ = chatCmd.MarkFlagRequired("group")
	_ = chatCmd.MarkFlagRequired("user")
}

var (
	selfStyle   = color.New(color.FgGreen, color.OpBold)
	otherStyle  = color.New(color.FgCyan, color.OpBold)
	statusStyle = color.New(color.FgGray)
	errorStyle  = color.New(color.FgRed)
	pollStyle   = color.New(color.FgYellow)
)

func runChat(cmd *cobra.Command, _ []string) error {
	log, err := logger.New("warn", "text")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session, err := client.Dial(ctx, chatCfg, log)
	if err != nil {
		return err
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", chatCfg.GroupID),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	out := rl.Stdout()

	if err := session.LoadHistory(ctx); err != nil {
		return err
	}
	printTimeline(out, session.Timeline())

	session.OnChange = func(e models.Event) {
		printEvent(out, session.Timeline(), e)
	}
	session.OnError = func(msg string) {
		fmt.Fprintln(out, errorStyle.Render("server: "+msg))
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- session.Run(ctx)
		cancel()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if err := handleLine(ctx, out, session, line); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}

	cancel()
	return <-runErr
}

func handleLine(ctx context.Context, out io.Writer, s *client.Session, line string) error {
	if !strings.HasPrefix(line, "/") {
		corrID, err := s.Send(ctx, line)
		if err != nil {
			return fmt.Errorf("%w (retry with /retry %s)", err, corrID)
		}
		for _, e := range s.Timeline().Entries() {
			if e.CorrelationID == corrID {
				printEntry(out, s.Timeline(), e)
			}
		}
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/read":
		if len(fields) != 2 {
			return errors.New("usage: /read <id>")
		}
		return s.MarkRead(ctx, fields[1])
	case "/vote":
		if len(fields) != 3 {
			return errors.New("usage: /vote <id> <n>")
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid option %q", fields[2])
		}
		return s.Vote(ctx, fields[1], n-1)
	case "/retry":
		if len(fields) != 2 {
			return errors.New("usage: /retry <corr>")
		}
		return s.Retry(ctx, fields[1])
	case "/list":
		printTimeline(out, s.Timeline())
		return nil
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

func printTimeline(out io.Writer, tl *client.Timeline) {
	for _, e := range tl.Entries() {
		printEntry(out, tl, e)
	}
}

func printEntry(out io.Writer, tl *client.Timeline, e client.Entry) {
	m := e.Message
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	style := otherStyle
	if m.SenderID == tl.Self() {
		style = selfStyle
	}

	marker := string(m.Status)
	switch e.State {
	case client.StatePending:
		marker = "sending"
	case client.StateFailed:
		marker = "failed, /retry " + e.CorrelationID
	}

	fmt.Fprintf(out, "%s %s %s %s\n",
		statusStyle.Render(m.CreatedAt.Local().Format("15:04")),
		style.Render(name+":"),
		m.Content,
		statusStyle.Render("["+m.ID+" "+marker+"]"),
	)
	if m.Poll != nil {
		for i, opt := range m.Poll.Options {
			fmt.Fprintln(out, pollStyle.Render(fmt.Sprintf("    %d) %s (%d)", i+1, opt.Text, opt.Count)))
		}
	}
	if m.Attachment != nil {
		fmt.Fprintln(out, statusStyle.Render("    "+m.Attachment.URL))
	}
}

func printEvent(out io.Writer, tl *client.Timeline, e models.Event) {
	switch ev := e.(type) {
	case models.MessageCreated:
		if entry, ok := tl.Entry(ev.Message.ID); ok {
			printEntry(out, tl, entry)
		}
	case models.StatusChanged:
		fmt.Fprintln(out, statusStyle.Render(fmt.Sprintf("  %s is now %s", ev.MessageID, ev.Status)))
	case models.VoteRecorded:
		if entry, ok := tl.Entry(ev.MessageID); ok {
			printEntry(out, tl, entry)
		}
	}
}
