package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"mailops/internal/model"
)

// IMAPTransport implements Transport against a real IMAP server. Credentials
// are resolved per address at dial time; credential storage itself lives
// outside this service.
type IMAPTransport struct {
	credentials map[string]string
	dialTimeout time.Duration
}

func NewIMAPTransport(credentials map[string]string, dialTimeout time.Duration) *IMAPTransport {
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	return &IMAPTransport{credentials: credentials, dialTimeout: dialTimeout}
}

// Open dials, authenticates and selects the folder once; the returned session
// serves every fetch of the sync pass over that single connection.
func (t *IMAPTransport) Open(ctx context.Context, account *model.MailboxAccount, folder string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	addr := fmt.Sprintf("%s:%d", account.Host, account.Port)
	var c *client.Client
	var err error
	if account.UseSSL {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}
	c.Timeout = t.dialTimeout

	password, ok := t.credentials[account.Email]
	if !ok {
		c.Logout()
		return nil, fmt.Errorf("%w: no credentials for %s", ErrAuth, account.Email)
	}
	if err := c.Login(account.Email, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if _, err := c.Select(folder, true); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: select %s: %v", ErrConnection, folder, err)
	}
	return &imapSession{c: c}, nil
}

type imapSession struct {
	c *client.Client
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}

func (s *imapSession) ListUIDs(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	uids, err := s.c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("%w: uid search: %v", ErrConnection, err)
	}
	return uids, nil
}

func (s *imapSession) FetchEnvelope(ctx context.Context, uid uint32) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchRFC822Size, imap.FetchBodyStructure, imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seqset, items, messages) }()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch %d: %v", ErrConnection, uid, err)
	}
	if msg == nil || msg.Envelope == nil {
		return nil, fmt.Errorf("%w: uid %d not found", ErrConnection, uid)
	}

	env := &Envelope{
		UID:       msg.Uid,
		MessageID: msg.Envelope.MessageId,
		Subject:   msg.Envelope.Subject,
		Date:      msg.Envelope.Date,
		Size:      int(msg.Size),
		Flags:     msg.Flags,
	}
	if len(msg.Envelope.From) > 0 {
		env.FromEmail = msg.Envelope.From[0].Address()
		env.FromName = msg.Envelope.From[0].PersonalName
	}
	for _, a := range msg.Envelope.To {
		env.To = append(env.To, a.Address())
	}
	for _, a := range msg.Envelope.Cc {
		env.Cc = append(env.Cc, a.Address())
	}
	if msg.BodyStructure != nil {
		env.AttachmentNames = attachmentNames(msg.BodyStructure)
	}
	return env, nil
}

func (s *imapSession) FetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages) }()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch %d: %v", ErrConnection, uid, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: uid %d not found", ErrConnection, uid)
	}
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("%w: uid %d has no body section", ErrConnection, uid)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrConnection, err)
	}
	return body, nil
}

func attachmentNames(bs *imap.BodyStructure) []string {
	var names []string
	var walk func(part *imap.BodyStructure)
	walk = func(part *imap.BodyStructure) {
		if strings.EqualFold(part.Disposition, "attachment") {
			if name, ok := part.DispositionParams["filename"]; ok {
				names = append(names, name)
			} else if name, ok := part.Params["name"]; ok {
				names = append(names, name)
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(bs)
	return names
}
