package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/dispatch"
	"github.com/ajayykmr/billing-notifier/internal/models"
	"github.com/ajayykmr/billing-notifier/internal/session"
)

const passwordEnv = "NOTIFY_PASSWORD"

func loginCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("login")
	phone := fs.String("phone", "", "staff phone number")
	password := fs.String("password", "", "password (defaults to $"+passwordEnv+", then a prompt)")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}

	if *phone == "" {
		*phone = c.prompt("Phone number")
	}
	if *password == "" {
		*password = os.Getenv(passwordEnv)
	}
	if *password == "" {
		*password = c.prompt("Password")
	}

	res, err := c.client.SignIn(ctx, *phone, *password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := c.session.Begin(ctx, session.Session{Token: res.Token, User: res.User}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	name := strings.TrimSpace(res.User.FirstName + " " + res.User.LastName)
	if name == "" {
		name = *phone
	}
	fmt.Fprintf(c.out, "Signed in as %s.\n", name)
	return nil
}

func logoutCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("logout")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}
	if err := c.session.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintln(c.out, "Signed out.")
	return nil
}

func sendCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("send")
	kind := fs.String("segment", "", "all, unpaid, low-balance, high-balance or day")
	day := fs.String("day", "", "weekday for -segment day (MONDAY..SUNDAY)")
	mobile := fs.String("mobile", "", "single customer within the day group")
	message := fs.String("message", "", "message text")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	segment, err := models.ParseSegment(*kind, *day, *mobile)
	if err != nil {
		fmt.Fprintln(c.errOut, err)
		fs.Usage()
		return errUsage
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}
	if err := c.requireSession(); err != nil {
		return err
	}
	d, err := c.dispatcher()
	if err != nil {
		return err
	}

	st, err := d.RequestSend(segment, *message)
	if err != nil {
		return err
	}
	if st.Phase == dispatch.AwaitingConfirmation {
		if !*yes && !c.confirm(confirmQuestion(st)) {
			if _, err := d.Cancel(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Cancelled.")
			return nil
		}
		if _, err := d.Confirm(st.Segment); err != nil {
			return err
		}
	}

	_, sendErr := d.Dispatch(ctx)
	result := d.State()
	d.Acknowledge()
	if sendErr != nil {
		return sendErr
	}
	fmt.Fprintln(c.out, result.Detail)
	return nil
}

func confirmQuestion(st dispatch.State) string {
	target := "customers with " + strings.ReplaceAll(st.Segment.Label(), "_", " ") + " accounts"
	switch {
	case st.Segment.IsSingleCustomer():
		target = fmt.Sprintf("customer %s (%s group)", st.Segment.Mobile, st.Segment.Day)
	case st.Segment.Kind == models.SegmentDay:
		target = fmt.Sprintf("the %s group", st.Segment.Day)
	}
	if st.Message == "" {
		return fmt.Sprintf("Send the default reminder to %s?", target)
	}
	return fmt.Sprintf("Send %q to %s?", st.Message, target)
}

func historyCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("history")
	page := fs.Int("page", 1, "page number, starting at 1")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if *page < 1 {
		fmt.Fprintln(c.errOut, "-page must be at least 1")
		return errUsage
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}
	if err := c.requireSession(); err != nil {
		return err
	}

	res, err := c.client.SMSHistory(ctx, *page)
	if err != nil {
		return fmt.Errorf("sms history: %w", err)
	}
	if len(res.Records) == 0 {
		fmt.Fprintln(c.out, "No messages.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMOBILE\tMESSAGE\tSTATUS\tSENT")
	for _, r := range res.Records {
		sent := ""
		if !r.CreatedAt.IsZero() {
			sent = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ClientSMSID, r.Mobile, ellipsis(r.Message, 40), r.Status, sent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "page %d of %d\n", res.Page, res.TotalPages())
	return nil
}

func ellipsis(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func sendBillCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("send-bill")
	customer := fs.String("customer", "", "customer id")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*customer) == "" {
		fmt.Fprintln(c.errOut, "-customer is required")
		fs.Usage()
		return errUsage
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}
	if err := c.requireSession(); err != nil {
		return err
	}
	msg, err := c.client.SendBill(ctx, *customer)
	if err != nil {
		return c.serverFailure(ctx, "send bill", err)
	}
	fmt.Fprintln(c.out, orDefault(msg, "Bill sent."))
	return nil
}

func sendBillsCmd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("send-bills")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if err := c.setup(ctx, *verbose); err != nil {
		return err
	}
	if err := c.requireSession(); err != nil {
		return err
	}
	if !*yes && !c.confirm("Text the current bill to every customer?") {
		fmt.Fprintln(c.out, "Cancelled.")
		return nil
	}
	msg, err := c.client.SendBills(ctx)
	if err != nil {
		return c.serverFailure(ctx, "send bills", err)
	}
	fmt.Fprintln(c.out, orDefault(msg, "Bills sent."))
	return nil
}

// serverFailure drops a session the server no longer accepts, as the
// dispatcher does for segment sends.
func (c *cli) serverFailure(ctx context.Context, op string, err error) error {
	if common.IsUnauthorized(err) {
		if clearErr := c.session.Clear(ctx); clearErr != nil {
			c.log.Warn().Err(clearErr).Msg("failed to clear rejected session")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
