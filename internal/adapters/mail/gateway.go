// Package mail wraps the IMAP client used to poll for Interac bank
// notification emails.
//
// One Gateway instance lives for one reconciliation tick: connect at tick
// start, expunge and logout at tick end. Messages are never MOVEd; a match
// is archived with COPY, then flagged \Deleted, and the deferred expunge
// makes the removal visible. That keeps the gateway compatible with servers
// lacking the MOVE extension and keeps unmatched messages in the inbox for
// retry on a later tick.
package mail

import (
	"crypto/tls"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/lpgagnon/passtrack-backend/internal/domain/interac"
)

// Config holds everything the gateway needs for one tick
type Config struct {
	Server        string // host without port
	Username      string
	Password      string
	SubjectPrefix string
	BankFrom      string
}

// Gateway is an IMAP session over the inbox
type Gateway struct {
	cfg    Config
	c      *client.Client
	logger *slog.Logger
}

// NewGateway creates a disconnected gateway
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, logger: logger}
}

// Connect opens the IMAP session: SSL on 993 first, then plain IMAP on 143
// upgraded with STARTTLS, logs in and selects INBOX.
func (g *Gateway) Connect() error {
	host := g.cfg.Server

	c, err := client.DialTLS(host+":993", nil)
	if err != nil {
		g.logger.Warn("SSL connection failed, trying STARTTLS", "server", host, "error", err)

		c, err = client.Dial(host + ":143")
		if err != nil {
			return wrap("connect", err)
		}
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return wrap("starttls", err)
		}
	}

	if err := c.Login(g.cfg.Username, g.cfg.Password); err != nil {
		return wrap("login", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		return wrap("select", err)
	}

	g.c = c
	return nil
}

// FetchNotifications returns inbox messages that pass the bank filters, in
// arrival order. Messages are fetched with envelope data only and are not
// marked seen. Messages from unexpected senders are logged and dropped.
func (g *Gateway) FetchNotifications() ([]*Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", g.cfg.SubjectPrefix)

	uids, err := g.c.UidSearch(criteria)
	if err != nil {
		return nil, wrap("search", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	ch := make(chan *imap.Message, len(uids))
	if err := g.c.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, ch); err != nil {
		return nil, wrap("fetch", err)
	}

	var messages []*Message
	for msg := range ch {
		if msg.Envelope == nil {
			continue
		}

		var from string
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		subject := msg.Envelope.Subject

		// Boundary filters: exact sender, subject prefix, case-insensitive
		if !interac.SubjectMatches(subject, g.cfg.SubjectPrefix) {
			continue
		}
		if !interac.SenderMatches(from, g.cfg.BankFrom) {
			g.logger.Warn("ignored email from unexpected sender", "from", from)
			continue
		}

		messages = append(messages, &Message{
			UID:       msg.Uid,
			Subject:   subject,
			FromEmail: from,
			Date:      msg.Envelope.Date.UTC(),
		})
	}

	return messages, nil
}

// Archive copies a message to folder and flags the original \Deleted.
// The folder is created on demand; the caller runs Expunge at tick end.
// On any failure the message keeps its inbox copy.
func (g *Gateway) Archive(uid uint32, folder string) error {
	if err := g.ensureFolder(folder); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	if err := g.c.UidCopy(seqset, folder); err != nil {
		return wrap("copy", err)
	}

	// Only flag \Deleted once the copy is safely in the archive folder
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := g.c.UidStore(seqset, item, flags, nil); err != nil {
		return wrap("store", err)
	}

	return nil
}

// ensureFolder creates folder when the mailbox listing does not show it.
// Creation errors are tolerated when the folder turns out to exist anyway
// (some servers report ALREADYEXISTS).
func (g *Gateway) ensureFolder(folder string) error {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- g.c.List("", folder, mailboxes)
	}()

	exists := false
	for mb := range mailboxes {
		if mb.Name == folder {
			exists = true
		}
	}
	if err := <-done; err != nil {
		return wrap("list", err)
	}

	if exists {
		return nil
	}

	g.logger.Info("creating folder", "folder", folder)
	if err := g.c.Create(folder); err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "ALREADYEXISTS") {
			return nil
		}
		return wrap("create", err)
	}

	return nil
}

// Expunge permanently removes \Deleted messages. Called once at tick end.
func (g *Gateway) Expunge() error {
	return wrap("expunge", g.c.Expunge(nil))
}

// Logout ends the session
func (g *Gateway) Logout() error {
	if g.c == nil {
		return nil
	}
	return wrap("logout", g.c.Logout())
}
