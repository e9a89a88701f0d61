package dynamiclist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

// Service resolves dynamic lists to user ids.
type Service struct {
	repo     repository.Repository
	searcher search.Searcher
	logger   *slog.Logger
}

func NewService(repo repository.Repository, searcher search.Searcher, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{repo: repo, searcher: searcher, logger: logger}, nil
}

// LoadContext reads the context named name.
func (s *Service) LoadContext(ctx context.Context, name string) (*Context, error) {
	content, err := s.repo.Get(ctx, ContextPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to load dynamic list context %s: %w", name, err)
	}
	return ContextFromContent(content)
}

// UserIDsForCriteria returns the ids of users whose demographics match
// criteria. Access and criteria errors are returned as *AccessControlError
// and *CriteriaError.
func (s *Service) UserIDsForCriteria(ctx context.Context, c *Context, criteria string) ([]string, error) {
	q, err := QueryForCriteria(c, criteria)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("dynamic list query", "context", c.Name, "query", q)
	if s.searcher == nil {
		return nil, search.ErrNoIndex
	}

	res, err := s.searcher.Search(ctx, search.Query{Q: q, Rows: search.MaxRows})
	if err != nil {
		return nil, fmt.Errorf("failed to search demographics: %w", err)
	}
	if len(res.Docs) >= search.MaxRows {
		s.logger.Warn("dynamic list query reached the row limit, results are truncated",
			"context", c.Name, "rows", search.MaxRows)
	}

	seen := make(map[string]struct{}, len(res.Docs))
	ids := make([]string, 0, len(res.Docs))
	for _, doc := range res.Docs {
		path := doc.First(search.FieldPath)
		if path == "" {
			path = doc.First(search.FieldID)
		}
		id, err := repository.UserIDFromPath(path)
		if err != nil {
			s.logger.Warn("ignoring demographic outside a user home", "path", path)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// UserIDsForNode resolves the context and criteria stored on a list or query
// node.
func (s *Service) UserIDsForNode(ctx context.Context, list *repository.Content) ([]string, error) {
	name := list.String(PropListContext)
	criteria := list.String(PropListCriteria)
	if name == "" || criteria == "" {
		return nil, &CriteriaError{Msg: fmt.Sprintf("list %s needs both %s and %s", list.Path, PropListContext, PropListCriteria)}
	}
	c, err := s.LoadContext(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.UserIDsForCriteria(ctx, c, criteria)
}

// SetDemographics stores the demographic values of userID. A nil set removes
// them. The node is created on first use and hidden from everyone but the
// administrator.
func (s *Service) SetDemographics(ctx context.Context, userID string, demographics []string) error {
	path := DemographicPath(userID)
	content, err := s.repo.Get(ctx, path)
	switch {
	case repository.IsNotFound(err):
		content = repository.NewContent(path, map[string]any{
			repository.PropResourceType: DemographicResourceType,
		})
		if err := s.repo.Update(ctx, content); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		err = s.repo.SetACL(ctx, path, []repository.AccessControlEntry{
			repository.Deny(repository.Anonymous, repository.PrivAll),
			repository.Deny(repository.Everyone, repository.PrivAll),
		})
		if err != nil {
			return fmt.Errorf("failed to restrict %s: %w", path, err)
		}
	case err != nil:
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	if demographics != nil {
		values := make([]string, len(demographics))
		copy(values, demographics)
		sort.Strings(values)
		content.SetProperty(PropDemographics, values)
	} else {
		content.RemoveProperty(PropDemographics)
	}
	s.logger.Info("set demographics", "path", path, "demographics", demographics)
	if err := s.repo.Update(ctx, content); err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

// AllUserIDs returns the id of every user with a home.
func (s *Service) AllUserIDs(ctx context.Context) ([]string, error) {
	homes, err := s.repo.Find(ctx, map[string]any{
		repository.PropResourceType: repository.UserHomeResourceType,
	}, search.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to find user homes: %w", err)
	}
	ids := make([]string, 0, len(homes))
	for _, home := range homes {
		id, err := repository.UserIDFromPath(home.Path)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UserStatus sorts every user into one of three groups.
type UserStatus struct {
	Dropped         []string `json:"dropped"`
	Nonparticipants []string `json:"nonparticipants"`
	Participants    []string `json:"participants"`
}

// ParticipantPath is the profile element marking a portal participant.
func ParticipantPath(userID string) string {
	return repository.ElementPath(userID, "myberkeley", "participant")
}

// UserStatuses splits all users into participants, integrated
// nonparticipants and dropped users.
func (s *Service) UserStatuses(ctx context.Context) (*UserStatus, error) {
	ids, err := s.AllUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	status := &UserStatus{Dropped: []string{}, Nonparticipants: []string{}, Participants: []string{}}
	for _, id := range ids {
		participant, err := s.repo.Exists(ctx, ParticipantPath(id))
		if err != nil {
			return nil, fmt.Errorf("failed to check participant status of %s: %w", id, err)
		}
		integrated := false
		demographic, err := s.repo.Get(ctx, DemographicPath(id))
		if err == nil {
			integrated = demographic.HasProperty(PropDemographics)
		} else if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load demographics of %s: %w", id, err)
		}

		if participant && !integrated {
			email, err := repository.ProfileElement(ctx, s.repo, id, "email", "email")
			if err != nil {
				return nil, err
			}
			if email == "" {
				s.logger.Warn("participant was mistakenly dropped", "user", id)
			}
		}

		switch {
		case participant:
			status.Participants = append(status.Participants, id)
		case integrated:
			status.Nonparticipants = append(status.Nonparticipants, id)
		default:
			status.Dropped = append(status.Dropped, id)
		}
	}
	return status, nil
}
