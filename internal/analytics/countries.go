package analytics

import (
	"fmt"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// CountryShare is one country's share of distinct visitors.
type CountryShare struct {
	Country    string  `json:"country"`
	Name       string  `json:"name"`
	Visitors   int64   `json:"visitors"`
	Percentage float64 `json:"percentage"`
}

var countryQuery = sync.OnceValue(gountries.New)

// CountryName resolves an ISO alpha-2/alpha-3 code to its common name,
// falling back to the upper-cased code.
func CountryName(code string) string {
	country, err := countryQuery().FindCountryByAlpha(code)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}

// GetVisitorsByCountry reports each country's share of all distinct visitors
// in the time frame. Visits without a country count toward the total only.
func GetVisitorsByCountry(db *gorm.DB, params SiteScopedQueryParams) ([]CountryShare, error) {
	var rawResults []struct {
		Country  string
		Visitors int64
	}

	query := `
    SELECT
        UPPER(TRIM(country)) as country,
        COUNT(DISTINCT visitor_id) as visitors
    FROM visits
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    AND country IS NOT NULL
    AND TRIM(country) != ''
    GROUP BY UPPER(TRIM(country))
    ORDER BY visitors DESC, country ASC
    `

	err := db.Raw(query,
		params.SiteID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching visitors by country: %w", err)
	}

	total, err := distinctVisitorsBetween(db, params.SiteID, params.TimeFrame.From, params.TimeFrame.To)
	if err != nil {
		return nil, err
	}

	results := make([]CountryShare, len(rawResults))
	for i, r := range rawResults {
		results[i] = CountryShare{
			Country:    r.Country,
			Name:       CountryName(r.Country),
			Visitors:   r.Visitors,
			Percentage: percentage(r.Visitors, total),
		}
	}
	return results, nil
}
