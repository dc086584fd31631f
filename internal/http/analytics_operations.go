package http

import (
	"errors"

	"tally/internal/analytics"
	"tally/internal/apperr"
	"tally/internal/auth"
	"tally/internal/queryapi"
	"tally/internal/timeframe"
	"tally/internal/users"
)

type siteRangeVariables struct {
	SiteID       uint   `json:"siteId"`
	StartAt      string `json:"startAt"`
	EndAt        string `json:"endAt"`
	DateGrouping string `json:"dateGrouping"`
	Limit        int    `json:"limit"`

	grouping timeframe.Grouping
}

func (v *siteRangeVariables) Validate() error {
	if v.SiteID == 0 {
		return apperr.Validation("siteId is required")
	}
	grouping, err := timeframe.ParseGrouping(v.DateGrouping)
	if err != nil {
		return apperr.Validation("dateGrouping must be one of day, month or year")
	}
	v.grouping = grouping
	if v.Limit < 0 || v.Limit > analytics.DefaultLimit {
		return apperr.Validation("limit must be between 1 and 20")
	}
	return rangeError(timeframe.CheckBounds(v.StartAt, v.EndAt, v.grouping))
}

// rangeError maps time frame errors onto validation failures.
func rangeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, timeframe.ErrInvalidRange):
		return apperr.Validation("startAt must not be after endAt")
	case errors.Is(err, timeframe.ErrRangeTooLong):
		return apperr.Validation("Date range has too many points for this dateGrouping, use month or year")
	default:
		return apperr.Validation(err.Error())
	}
}

type analyticsOperations struct {
	parser *timeframe.TimeFrameParser
}

// AnalyticsOperations registers the per-site aggregate queries. A nil parser
// reads the system clock.
func AnalyticsOperations(parser *timeframe.TimeFrameParser) queryapi.OperationSet {
	if parser == nil {
		parser = timeframe.NewTimeFrameParser()
	}
	ops := &analyticsOperations{parser: parser}

	return queryapi.OperationSet{
		Area: "analytics",
		Operations: []queryapi.Operation{
			{
				Name:    "siteKPISummary",
				Aliases: []string{"siteKPIStats"},
				Handler: siteQuery(ops, "site KPI stats", analytics.KPISummary{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) (analytics.KPISummary, error) {
					return analytics.GetKPISummary(req.Ctx, req.DB(), p)
				}),
			},
			{
				Name:    "siteLiveStats",
				Handler: ops.liveStats,
			},
			{
				Name:    "siteTrafficTrends",
				Aliases: []string{"siteTrafficStats"},
				Handler: siteQuery(ops, "traffic trends", []analytics.TrafficPoint{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) ([]analytics.TrafficPoint, error) {
					return analytics.GetTrafficTrends(req.DB(), p)
				}),
			},
			{
				Name: "siteTopPages",
				Handler: siteQuery(ops, "top pages", []analytics.PageStat{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) ([]analytics.PageStat, error) {
					return analytics.GetTopPages(req.DB(), p)
				}),
			},
			{
				Name: "siteTopChannels",
				Handler: siteQuery(ops, "top channels", []analytics.ChannelStat{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) ([]analytics.ChannelStat, error) {
					return analytics.GetTopChannels(req.DB(), p)
				}),
			},
			{
				Name: "siteAcquisitionTrends",
				Handler: siteQuery(ops, "acquisition trends", []analytics.AcquisitionPoint{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) ([]analytics.AcquisitionPoint, error) {
					return analytics.GetAcquisitionTrends(req.DB(), p)
				}),
			},
			{
				Name: "siteSessionsByDevice",
				Handler: siteQuery(ops, "sessions by device", analytics.DeviceShare{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) (analytics.DeviceShare, error) {
					return analytics.GetSessionsByDevice(req.DB(), p)
				}),
			},
			{
				Name: "siteVisitorsByCountry",
				Handler: siteQuery(ops, "visitors by country", []analytics.CountryShare{}, func(req *queryapi.Request, p analytics.SiteScopedQueryParams) ([]analytics.CountryShare, error) {
					return analytics.GetVisitorsByCountry(req.DB(), p)
				}),
			},
		},
	}
}

// scopedParams authorizes the caller for the site and resolves the time frame
// in the owner's timezone.
func (o *analyticsOperations) scopedParams(req *queryapi.Request, vars *siteRangeVariables) (analytics.SiteScopedQueryParams, error) {
	db := req.DB()
	site, err := auth.AuthorizeSiteAccess(db, req.Identity, vars.SiteID)
	if err != nil {
		return analytics.SiteScopedQueryParams{}, err
	}

	owner, err := users.FindByID(db, site.UserID)
	if err != nil {
		return analytics.SiteScopedQueryParams{}, err
	}

	tf, err := o.parser.ParseTimeFrame(timeframe.TimeFrameParserParams{
		StartAt:  vars.StartAt,
		EndAt:    vars.EndAt,
		Tz:       owner.Location(),
		Grouping: vars.grouping,
	})
	if err != nil {
		return analytics.SiteScopedQueryParams{}, rangeError(err)
	}

	params := analytics.NewSiteScopedQueryParams(tf, site.ID, site.Domain)
	params.DateFormat = owner.Format()
	if vars.Limit > 0 {
		params.Limit = vars.Limit
	}
	return params, nil
}

// siteQuery builds the handler shared by every ranged per-site aggregate:
// decode, authorize, resolve the window, run.
func siteQuery[T any](o *analyticsOperations, what string, zero T, run func(*queryapi.Request, analytics.SiteScopedQueryParams) (T, error)) queryapi.HandlerFunc {
	failed := "Failed to fetch " + what
	fetched := "Fetched " + what + " successfully"

	return func(req *queryapi.Request) queryapi.Envelope {
		var vars siteRangeVariables
		if err := queryapi.Decode(req, &vars); err != nil {
			return queryapi.Failure(req, err, failed, zero)
		}

		params, err := o.scopedParams(req, &vars)
		if err != nil {
			return queryapi.Failure(req, err, failed, zero)
		}

		data, err := run(req, params)
		if err != nil {
			return queryapi.Failure(req, err, failed, zero)
		}
		return queryapi.OK(fetched, data)
	}
}

func (o *analyticsOperations) liveStats(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to fetch site live stats"

	var vars siteVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, analytics.LiveStats{})
	}

	db := req.DB()
	site, err := auth.AuthorizeSiteAccess(db, req.Identity, vars.SiteID)
	if err != nil {
		return queryapi.Failure(req, err, failed, analytics.LiveStats{})
	}

	owner, err := users.FindByID(db, site.UserID)
	if err != nil {
		return queryapi.Failure(req, err, failed, analytics.LiveStats{})
	}

	stats, err := analytics.GetLiveStats(req.Ctx, db, site.ID, owner.Location(), req.Now)
	if err != nil {
		return queryapi.Failure(req, err, failed, analytics.LiveStats{})
	}
	return queryapi.OK("Fetched site live stats successfully", stats)
}
