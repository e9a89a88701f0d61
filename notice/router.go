package notice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Transports a recipient can be routed through.
const (
	TransportNotice = "notice"
	TransportSMTP   = "smtp"
	// TransportDynamicList expands a legacy dynamic list into notice routes.
	TransportDynamicList = "dynamiclist"
)

// Legacy dynamic list layout: the list node at the recipient path carries its
// criteria JSON in PropListQuery.
const (
	PropListQuery = "query"
	AnchorParam   = "context"
	NestedParam   = "standing"
)

// Route sends a message to one recipient through one transport.
type Route struct {
	Recipient string
	Transport string
}

// RecipientResolver finds the users a profile query selects.
type RecipientResolver interface {
	UserIDs(ctx context.Context, queries []string) ([]string, error)
}

// Router expands the sakai:to of a message into routes. Entries have the form
// "transport:recipient"; a bare user id goes through the notice transport.
type Router struct {
	repo     repository.ContentManager
	resolver RecipientResolver
	logger   *slog.Logger
}

func NewRouter(repo repository.ContentManager, resolver RecipientResolver, logger *slog.Logger) *Router {
	return &Router{repo: repo, resolver: resolver, logger: logger}
}

func (r *Router) Routes(ctx context.Context, message *repository.Content) ([]Route, error) {
	seen := map[Route]bool{}
	var routes []Route
	add := func(rt Route) {
		if rt.Recipient != "" && !seen[rt] {
			seen[rt] = true
			routes = append(routes, rt)
		}
	}
	for _, entry := range splitRecipients(message.Strings(PropTo)) {
		transport, recipient, ok := strings.Cut(entry, ":")
		if !ok {
			transport, recipient = TransportNotice, entry
		}
		switch transport {
		case TransportNotice, TransportSMTP:
			add(Route{Recipient: recipient, Transport: transport})
		case TransportDynamicList:
			ids, err := r.listMembers(ctx, recipient)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				add(Route{Recipient: id, Transport: TransportNotice})
			}
		default:
			r.logger.Warn("no transport for recipient", "recipient", entry, "message", message.Path)
		}
	}
	return routes, nil
}

func (r *Router) listMembers(ctx context.Context, path string) ([]string, error) {
	list, err := r.repo.Get(ctx, repository.FromURLPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load dynamic list %s: %w", path, err)
	}
	params, err := ExtractQueryParams(list.String(PropListQuery), AnchorParam, NestedParam)
	if err != nil {
		return nil, err
	}
	queries := ProfileQueries(ParticipantRoot, params)
	r.logger.Debug("dynamic list queries", "list", path, "queries", queries)
	return r.resolver.UserIDs(ctx, queries)
}

// splitRecipients splits comma separated entries and trims them.
func splitRecipients(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// InboxTransport copies a notice into every notice recipient's message store.
type InboxTransport struct {
	repo   repository.Repository
	logger *slog.Logger
}

func NewInboxTransport(repo repository.Repository, logger *slog.Logger) *InboxTransport {
	return &InboxTransport{repo: repo, logger: logger}
}

func (t *InboxTransport) Send(ctx context.Context, routes []Route, original *repository.Content) error {
	id := original.String(PropID)
	if id == "" {
		return fmt.Errorf("message %s has no %s", original.Path, PropID)
	}
	children, err := t.attachments(ctx, original.Path)
	if err != nil {
		return err
	}
	for _, route := range routes {
		if route.Transport != TransportNotice {
			continue
		}
		t.logger.Info("started a notice routing", "recipient", route.Recipient, "message", original.Path)
		if err := EnsureStore(ctx, t.repo, route.Recipient); err != nil {
			return err
		}
		to := MessagePath(route.Recipient, id)
		n := original.Clone()
		n.Path = to
		t.handleDueDate(original, n)
		n.SetProperty(PropRead, false)
		n.SetProperty(PropMessageBox, BoxInbox)
		n.SetProperty(PropSendState, StateNotified)
		// only this recipient, not the whole list
		n.SetProperty(PropTo, route.Recipient)
		if err := t.repo.Update(ctx, n); err != nil {
			return fmt.Errorf("failed to copy notice to %s: %w", to, err)
		}
		for _, child := range children {
			c := child.Clone()
			c.Path = to + strings.TrimPrefix(child.Path, original.Path)
			if err := t.repo.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to copy %s: %w", child.Path, err)
			}
		}
	}
	return nil
}

func (t *InboxTransport) attachments(ctx context.Context, path string) ([]*repository.Content, error) {
	var out []*repository.Content
	err := t.repo.Walk(ctx, path+"/", func(c *repository.Content) error {
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read attachments of %s: %w", path, err)
	}
	return out, nil
}

// handleDueDate stores the due date of the copy in ISO8601 whatever form the
// sender posted it in.
func (t *InboxTransport) handleDueDate(original, n *repository.Content) {
	due := original.String(PropDueDate)
	if due == "" {
		t.logger.Debug("no due date in notice", "message", original.Path)
		return
	}
	parsed, err := ParseDate(due)
	if err != nil {
		t.logger.Error("failed to parse due date", "message", original.Path, "dueDate", due, "error", err)
		return
	}
	n.SetProperty(PropDueDate, isodate.Format(parsed))
}

// smtpRecipients returns the recipients routed through SMTP, sorted.
func smtpRecipients(routes []Route) []string {
	var out []string
	for _, r := range routes {
		if r.Transport == TransportSMTP {
			out = append(out, r.Recipient)
		}
	}
	sort.Strings(out)
	return out
}
