package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"tally/internal/events"
	"tally/internal/users"
	"tally/internal/websites"
)

const (
	DemoName     = "Demo"
	DemoEmail    = "demo@tally.local"
	DemoPassword = "demopassword1"
)

// DefaultDomains are the sites Run creates for the demo account.
var DefaultDomains = []string{"example.com", "blog.example.com", "shop.example.org"}

// Seeder fills the database with plausible traffic for local development.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	VisitCount int
	Days       int

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, visitCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	seed := uint64(time.Now().UnixNano())
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		VisitCount: visitCount,
		Days:       30,
		rng:        rand.New(rand.NewPCG(seed, seed>>1)),
		now:        time.Now,
	}
}

// WithSeed makes generated traffic reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

// Run creates the demo account and its sites, then generates traffic for
// each of them.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("visitCount", s.VisitCount))

	user, err := s.seedUser()
	if err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	sites, err := s.seedSites(user.ID)
	if err != nil {
		return fmt.Errorf("failed to seed sites: %w", err)
	}

	perSite := s.VisitCount / len(sites)
	if perSite == 0 {
		perSite = 1
	}
	for i := range sites {
		if _, err := s.generateTraffic(ctx, &sites[i], perSite); err != nil {
			return fmt.Errorf("failed to generate data for %s: %w", sites[i].Domain, err)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.String("email", DemoEmail),
		slog.Int("sites", len(sites)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// SeedDomain generates VisitCount visits for an existing site.
func (s *Seeder) SeedDomain(ctx context.Context, domain string) (int, error) {
	normalized, err := websites.NormalizeDomain(domain)
	if err != nil {
		return 0, err
	}

	var site websites.Site
	db := s.DBManager.GetConnection()
	if err := db.Where("domain = ?", normalized).Order("id ASC").First(&site).Error; err != nil {
		return 0, fmt.Errorf("site with domain %s not found: %w", normalized, err)
	}

	return s.generateTraffic(ctx, &site, s.VisitCount)
}

func (s *Seeder) seedUser() (*users.User, error) {
	db := s.DBManager.GetConnection()
	user, err := users.Register(db, s.Logger, DemoName, DemoEmail, DemoPassword)
	if errors.Is(err, users.ErrEmailExists) {
		return users.FindByEmail(db, DemoEmail)
	}
	return user, err
}

func (s *Seeder) seedSites(userID uint) ([]websites.Site, error) {
	db := s.DBManager.GetConnection()
	for _, domain := range DefaultDomains {
		_, err := websites.RegisterSite(db, s.Logger, userID, domain)
		if err != nil && !errors.Is(err, websites.ErrDuplicateSite) {
			return nil, err
		}
	}
	return websites.ListForUser(db, userID)
}

// journeys are page sequences a session walks through.
var journeys = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/products", "/products/widget-a", "/products/gadget-b", "/pricing"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/blog", "/blog/article-1", "/blog/article-2"},
	{"/", "/signup"},
	{"/blog/article-1"},
	{"/"},
	{"/login", "/dashboard", "/settings"},
}

var goalEvents = []struct {
	name string
	data map[string]any
}{
	{"newsletter_signup", map[string]any{"source": "footer"}},
	{"purchase", map[string]any{"price": 2999, "currency": "USD", "product": "premium_plan"}},
	{"demo_requested", map[string]any{"plan": "enterprise"}},
	{"download_started", map[string]any{"filename": "whitepaper.pdf"}},
	{"free_trial_started", map[string]any{"plan": "pro", "duration": "14_days"}},
}

// generateTraffic walks random journeys until about target pageviews are
// stored. It returns the number of visits created.
func (s *Seeder) generateTraffic(ctx context.Context, site *websites.Site, target int) (int, error) {
	ipPool := s.generateIPPool(100)
	userAgents := getUserAgents()
	referrers := getReferrers()
	visitorIDs := make([]string, 0, 64)
	created := 0

	window := time.Duration(s.Days) * 24 * time.Hour
	now := s.now().UTC()

	for created < target {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		// Returning visitors reuse an earlier id about a third of the time.
		var visitorID string
		if len(visitorIDs) > 0 && s.rng.IntN(3) == 0 {
			visitorID = visitorIDs[s.rng.IntN(len(visitorIDs))]
		} else {
			visitorID = uuid.NewString()
			visitorIDs = append(visitorIDs, visitorID)
		}
		sessionID := uuid.NewString()

		journey := journeys[s.rng.IntN(len(journeys))]
		ip := ipPool[s.rng.IntN(len(ipPool))]
		userAgent := userAgents[s.rng.IntN(len(userAgents))]
		referrer := referrers[s.rng.IntN(len(referrers))]
		at := now.Add(-time.Duration(s.rng.Int64N(int64(window))))

		for i, path := range journey {
			if created >= target {
				break
			}
			if i > 0 {
				at = at.Add(time.Duration(s.rng.IntN(110)+10) * time.Second)
				referrer = ""
			}
			if at.After(now) {
				break
			}

			fullPath := path
			if i == 0 {
				fullPath = s.addUTMParams(path)
			}

			_, err := events.CollectVisit(s.DBManager, s.Logger, &events.CollectVisitInput{
				SitePublicKey: site.PublicKey,
				VisitorID:     visitorID,
				SessionID:     sessionID,
				URL:           "https://" + site.Domain + fullPath,
				Referrer:      referrer,
				UserAgent:     userAgent,
				IPAddress:     ip,
				Timestamp:     at,
			})
			if err != nil {
				return created, err
			}
			created++
		}

		if s.rng.Float64() < 0.2 {
			goal := goalEvents[s.rng.IntN(len(goalEvents))]
			_, err := events.RecordEvent(s.DBManager, s.Logger, &events.RecordEventInput{
				SitePublicKey: site.PublicKey,
				SessionID:     sessionID,
				Name:          goal.name,
				EventData:     goal.data,
				IPAddress:     ip,
				Timestamp:     at,
			})
			if err != nil {
				return created, err
			}
		}
	}

	s.Logger.Info("Generated traffic for site",
		slog.String("domain", site.Domain),
		slog.Int("visits", created),
		slog.Int("visitors", len(visitorIDs)))
	return created, nil
}

// generateIPPool creates a pool of unique public IPv4 addresses
func (s *Seeder) generateIPPool(count int) []string {
	seen := make(map[string]bool, count)
	ips := make([]string, 0, count)
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", s.rng.IntN(200)+11, s.rng.IntN(256), s.rng.IntN(256), s.rng.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	}
}

func getReferrers() []string {
	return []string{
		"",
		"",
		"https://www.google.com/",
		"https://www.bing.com/",
		"https://duckduckgo.com/",
		"https://www.facebook.com/",
		"https://t.co/abc123",
		"https://www.linkedin.com/feed/",
		"https://news.ycombinator.com/",
		"https://github.com/",
		"https://some-other-website.com/blog/post",
	}
}

// addUTMParams tags about one landing page in five with a campaign.
func (s *Seeder) addUTMParams(path string) string {
	if s.rng.IntN(10) < 8 {
		return path
	}

	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	params := u.Query()

	utms := []struct {
		key    string
		values []string
	}{
		{"utm_source", []string{"google", "facebook", "newsletter", "twitter", "linkedin"}},
		{"utm_medium", []string{"cpc", "social", "email", "organic", "referral"}},
		{"utm_campaign", []string{"spring_sale", "product_launch", "q4_promo"}},
	}
	for _, utm := range utms {
		params.Set(utm.key, utm.values[s.rng.IntN(len(utm.values))])
	}

	u.RawQuery = params.Encode()
	return u.String()
}
