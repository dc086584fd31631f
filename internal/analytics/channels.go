package analytics

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"tally/internal/pkg/referrers"
)

// ChannelStat is one traffic source with its distinct visitors and sessions.
type ChannelStat struct {
	Source   string `json:"source"`
	Visitors int64  `json:"visitors"`
	Visits   int64  `json:"visits"`
}

// GetTopChannels groups visits by referrer host ("Direct" when empty),
// excluding self-referrals, ranked by visitors.
func GetTopChannels(db *gorm.DB, params SiteScopedQueryParams) ([]ChannelStat, error) {
	var rawResults []struct {
		Referrer  string
		VisitorID string
		SessionID string
	}

	query := `
    SELECT
        COALESCE(referrer, '') as referrer,
        visitor_id,
        session_id
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY referrer, visitor_id, session_id
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top channels: %w", err)
	}

	type sets struct {
		visitors map[string]struct{}
		sessions map[string]struct{}
	}
	bySource := make(map[string]*sets)
	for _, r := range rawResults {
		source, ok := referrers.Source(r.Referrer, params.Domain)
		if !ok {
			continue
		}
		s, found := bySource[source]
		if !found {
			s = &sets{visitors: map[string]struct{}{}, sessions: map[string]struct{}{}}
			bySource[source] = s
		}
		s.visitors[r.VisitorID] = struct{}{}
		s.sessions[r.SessionID] = struct{}{}
	}

	results := make([]ChannelStat, 0, len(bySource))
	for source, s := range bySource {
		results = append(results, ChannelStat{
			Source:   source,
			Visitors: int64(len(s.visitors)),
			Visits:   int64(len(s.sessions)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Visitors != results[j].Visitors {
			return results[i].Visitors > results[j].Visitors
		}
		if results[i].Visits != results[j].Visits {
			return results[i].Visits > results[j].Visits
		}
		return results[i].Source < results[j].Source
	})

	if len(results) > params.limit() {
		results = results[:params.limit()]
	}
	return results, nil
}
