// Package bugs exposes the bug operations of the primary system over the
// signed upstream client.
package bugs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
)

// transport is the verb surface the service needs from the upstream client.
type transport interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body interface{}) ([]byte, error)
}

type Service struct {
	log    zerolog.Logger
	client transport
}

func NewService(log logger.Logger, client transport) *Service {
	return &Service{
		log:    log.With().Str("module", "bugs").Logger(),
		client: client,
	}
}

// GetBugs fetches one page of the upstream bug collection.
func (s *Service) GetBugs(ctx context.Context, query domain.BugListQuery) (*domain.BugPage, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 10
	}

	data, err := s.client.Post(ctx, "/bugs/getbugs", query)
	if err != nil {
		return nil, err
	}

	var page domain.BugPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(err, "could not decode bug page")
	}

	return &page, nil
}

// GetBugDetail fetches a single bug by id.
func (s *Service) GetBugDetail(ctx context.Context, bugID string) (*domain.Bug, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf("/bugs/%s", bugID))
	if err != nil {
		return nil, err
	}

	var bug domain.Bug
	if err := json.Unmarshal(data, &bug); err != nil {
		return nil, errors.Wrap(err, "could not decode bug %s", bugID)
	}

	return &bug, nil
}

// ResolveBug reports a single bug's disposition back to the primary system.
func (s *Service) ResolveBug(ctx context.Context, bugID string, resolution domain.BugResolution) error {
	if _, err := s.client.Post(ctx, fmt.Sprintf("/bugs/%s/resolve", bugID), resolution); err != nil {
		return err
	}

	s.log.Debug().Str("bug_id", bugID).Str("status", string(resolution.Status)).Msg("bug resolved upstream")
	return nil
}

// BatchResolveBugs reports several bugs' dispositions in one call.
func (s *Service) BatchResolveBugs(ctx context.Context, bugIDs []string, resolution domain.BugResolution) error {
	if len(bugIDs) == 0 {
		return errors.New("no bug ids given")
	}

	body := map[string]interface{}{
		"bugIds":         bugIDs,
		"resolutionData": resolution,
	}
	if _, err := s.client.Post(ctx, "/bugs/batch/resolve", body); err != nil {
		return err
	}

	s.log.Debug().Int("count", len(bugIDs)).Msg("bugs batch-resolved upstream")
	return nil
}
