package provision

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ets-berkeley-edu/myberkeley/internal/metrics"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	defaultLocale   = "en_US"
	defaultTimezone = "America/Los_Angeles"

	profileResourceType = "sakai/user-profile"

	// joinDateLayout is the date format the opt-in page stores.
	joinDateLayout = "Mon Jan 2 2006 15:04:05 GMT-0700 (MST)"

	passwordLength = 16
	passwordChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&*+-=?@^_"
)

// profileSections lists the attributes copied into each profile section.
var profileSections = map[string][]string{
	"basic":         {AttrFirstName, AttrLastName, AttrLocale, AttrTimezone},
	"institutional": {AttrCollege, AttrMajor, AttrRole},
	"email":         {AttrEmail},
}

// authorizableProps are mirrored onto the user record.
var authorizableProps = []string{AttrFirstName, AttrLastName, AttrEmail, AttrLocale, AttrTimezone}

// DemographicSetter stores a user's demographic values.
type DemographicSetter interface {
	SetDemographics(ctx context.Context, userID string, demographics []string) error
}

// AuthorizableService keeps portal accounts in step with directory data.
type AuthorizableService struct {
	repo   repository.Repository
	lists  DemographicSetter
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthorizableService(repo repository.Repository, lists DemographicSetter, logger *slog.Logger) *AuthorizableService {
	return &AuthorizableService{repo: repo, lists: lists, logger: logger, now: time.Now}
}

// LoadUser creates the user when missing and then copies attrs into the
// account and its profile. An id naming a group is an error.
func (s *AuthorizableService) LoadUser(ctx context.Context, userID string, attrs map[string]any) (ProvisionResult, error) {
	result, err := s.loadUser(ctx, userID, attrs)
	metrics.Provisioned.WithLabelValues(string(result.State)).Inc()
	return result, err
}

func (s *AuthorizableService) loadUser(ctx context.Context, userID string, attrs map[string]any) (ProvisionResult, error) {
	failed := ProvisionResult{State: StateError}
	state := StateRefreshed
	existing, err := s.repo.FindAuthorizable(ctx, userID)
	switch {
	case repository.IsNotFound(err):
		if err := s.createUser(ctx, userID); err != nil {
			return failed, err
		}
		state = StateCreated
	case err != nil:
		return failed, fmt.Errorf("failed to find %s: %w", userID, err)
	case existing.Group:
		s.logger.Warn("user id resolves to a group", "userId", userID)
		return failed, fmt.Errorf("%s is a group: %w", userID, repository.ErrInvalidInput)
	}

	if err := s.loadAttributes(ctx, userID, attrs); err != nil {
		return failed, err
	}
	user, err := s.repo.FindAuthorizable(ctx, userID)
	if err != nil {
		return failed, fmt.Errorf("failed to reload %s: %w", userID, err)
	}
	s.logger.Info("loaded user", "userId", userID, "state", state)
	return ProvisionResult{State: state, User: user}, nil
}

// LoadUsers looks up and loads every id with at most workers running at once.
// Results keep the order of ids; unknown people get StateError.
func (s *AuthorizableService) LoadUsers(ctx context.Context, provider PersonAttributeProvider, ids []string, workers int) []ProvisionResult {
	results := make([]ProvisionResult, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, id := range ids {
		g.Go(func() error {
			results[i] = ProvisionResult{State: StateError}
			attrs, err := provider.PersonAttributes(ctx, id)
			if err != nil {
				s.logger.Error("failed to look up person", "personId", id, "error", err)
				metrics.Provisioned.WithLabelValues(string(StateError)).Inc()
				return nil
			}
			if attrs == nil {
				s.logger.Warn("person not found", "personId", id)
				metrics.Provisioned.WithLabelValues(string(StateError)).Inc()
				return nil
			}
			result, err := s.LoadUser(ctx, id, attrs)
			if err != nil {
				s.logger.Error("failed to load user", "userId", id, "error", err)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// InitializeParticipant records that the user joined the portal.
func (s *AuthorizableService) InitializeParticipant(ctx context.Context, userID string) error {
	joinDate := s.now().Format(joinDateLayout)
	nodes := []*repository.Content{
		repository.NewContent(repository.ElementPath(userID, "myberkeley", "joinDate"), map[string]any{"date": joinDate}),
		repository.NewContent(repository.ElementPath(userID, "myberkeley", "participant"), map[string]any{"value": "true"}),
	}
	for _, n := range nodes {
		if err := s.mergeNode(ctx, n); err != nil {
			return fmt.Errorf("failed to initialize participant %s: %w", userID, err)
		}
	}
	return nil
}

func (s *AuthorizableService) createUser(ctx context.Context, userID string) error {
	password, err := randomPassword()
	if err != nil {
		return err
	}
	err = s.repo.CreateUser(ctx, userID, password, map[string]any{
		AttrLocale:   defaultLocale,
		AttrTimezone: defaultTimezone,
	})
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", userID, err)
	}
	s.logger.Info("created user", "userId", userID)

	home := repository.NewContent(repository.HomePath(userID), map[string]any{
		repository.PropResourceType: repository.UserHomeResourceType,
	})
	profile := repository.NewContent(repository.ProfilePath(userID), map[string]any{
		repository.PropResourceType: profileResourceType,
	})
	for _, n := range []*repository.Content{home, profile} {
		if err := s.mergeNode(ctx, n); err != nil {
			return fmt.Errorf("failed to create %s: %w", n.Path, err)
		}
	}

	acls := map[string][]repository.AccessControlEntry{
		repository.ProfilePath(userID) + "/institutional": {
			repository.Deny(repository.Anonymous, repository.PrivAll),
		},
		repository.ProfilePath(userID) + "/email": {
			repository.Deny(repository.Anonymous, repository.PrivAll),
			repository.Deny(repository.Everyone, repository.PrivAll),
			repository.Grant(userID, repository.PrivAll),
		},
	}
	for path, aces := range acls {
		if err := s.repo.SetACL(ctx, path, aces); err != nil {
			return fmt.Errorf("failed to set profile permissions on %s: %w", path, err)
		}
	}
	return nil
}

func (s *AuthorizableService) loadAttributes(ctx context.Context, userID string, attrs map[string]any) error {
	if pwd, ok := attrs[AttrPassword].(string); ok && pwd != "" {
		if err := s.repo.ChangePassword(ctx, userID, pwd); err != nil {
			return fmt.Errorf("failed to change password of %s: %w", userID, err)
		}
	}

	sections := make([]string, 0, len(profileSections))
	for name := range profileSections {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, section := range sections {
		for _, key := range profileSections[section] {
			v, ok := attrs[key]
			if !ok {
				continue
			}
			// Campus feeds sometimes carry HTML entities instead of UTF-8.
			value := html.UnescapeString(repository.StringValue(v))
			node := repository.NewContent(repository.ElementPath(userID, section, key), map[string]any{"value": value})
			if err := s.mergeNode(ctx, node); err != nil {
				return fmt.Errorf("failed to update profile of %s: %w", userID, err)
			}
		}
	}

	user, err := s.repo.FindAuthorizable(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", userID, err)
	}
	if user.Properties == nil {
		user.Properties = map[string]any{}
	}
	for _, key := range authorizableProps {
		if v, ok := attrs[key]; ok {
			user.Properties[key] = html.UnescapeString(repository.StringValue(v))
		}
	}
	if err := s.repo.UpdateAuthorizable(ctx, user); err != nil {
		return fmt.Errorf("failed to update %s: %w", userID, err)
	}

	if v, ok := attrs[AttrDemographics]; ok {
		demographics := repository.StringsValue(v)
		if demographics == nil {
			demographics = []string{}
		}
		if err := s.lists.SetDemographics(ctx, userID, demographics); err != nil {
			return fmt.Errorf("failed to set demographics of %s: %w", userID, err)
		}
	}
	return nil
}

// mergeNode adds n's properties to whatever is stored at its path.
func (s *AuthorizableService) mergeNode(ctx context.Context, n *repository.Content) error {
	existing, err := s.repo.Get(ctx, n.Path)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.repo.Update(ctx, n)
	case err != nil:
		return err
	}
	for k, v := range n.Properties {
		existing.SetProperty(k, v)
	}
	return s.repo.Update(ctx, existing)
}

func randomPassword() (string, error) {
	out := make([]byte, passwordLength)
	limit := big.NewInt(int64(len(passwordChars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = passwordChars[n.Int64()]
	}
	return string(out), nil
}
