package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// CampaignName extracts the campaign name from a recipient address: the
// local part up to the first '-'. "news-tag@y.com" gives "news".
func CampaignName(address string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	name, _, _ := strings.Cut(local, "-")
	return name
}

// CampaignResolver maps recipient addresses to campaigns by exact,
// case-sensitive name.
type CampaignResolver struct{}

// Resolve returns appErrors.ErrCampaignNotFound when no campaign matches.
func (r *CampaignResolver) Resolve(ctx context.Context, campaigns repository.CampaignRepositoryInterface, address string) (*model.Campaign, error) {
	name := CampaignName(address)
	if name == "" {
		return nil, appErrors.NewCampaignNotFound(address)
	}
	return campaigns.GetByName(ctx, name)
}
