package analytics

import (
	"gorm.io/gorm"

	"tally/internal/pkg/referrers"
)

// TrafficPoint is one bucket of the traffic series.
type TrafficPoint struct {
	Date      string `json:"date"`
	Visitors  int64  `json:"visitors"`
	Pageviews int64  `json:"pageviews"`
}

// AcquisitionPoint holds distinct visitors per channel for one bucket.
type AcquisitionPoint struct {
	Date     string `json:"date"`
	Direct   int64  `json:"direct"`
	Organic  int64  `json:"organic"`
	Social   int64  `json:"social"`
	Referral int64  `json:"referral"`
}

// GetTrafficTrends returns a gap-filled, ascending series of visitors and
// pageviews per calendar bucket of the time frame.
func GetTrafficTrends(db *gorm.DB, params SiteScopedQueryParams) ([]TrafficPoint, error) {
	tf := params.TimeFrame
	rows, err := fetchVisitorMinutes(db, params.SiteID, tf.From, tf.To)
	if err != nil {
		return nil, err
	}

	visitors := distinctPerBucket(rows, tf.BucketKey)
	pageviews := make(map[string]int64)
	for _, row := range rows {
		pageviews[tf.BucketKey(row.At())] += row.Pageviews
	}

	buckets := tf.Buckets()
	points := make([]TrafficPoint, len(buckets))
	for i, bucket := range buckets {
		points[i] = TrafficPoint{
			Date:      tf.Label(bucket.Start, params.DateFormat),
			Visitors:  visitors[bucket.Key],
			Pageviews: pageviews[bucket.Key],
		}
	}
	return points, nil
}

// GetAcquisitionTrends classifies every visit's referrer into a channel and
// counts distinct visitors per channel and bucket. Self-referrals are left out.
func GetAcquisitionTrends(db *gorm.DB, params SiteScopedQueryParams) ([]AcquisitionPoint, error) {
	tf := params.TimeFrame
	rows, err := fetchReferrerMinutes(db, params.SiteID, tf.From, tf.To)
	if err != nil {
		return nil, err
	}

	byChannel := make(map[referrers.Channel][]visitorMinute)
	for _, row := range rows {
		channel, ok := referrers.Classify(row.Referrer, params.Domain)
		if !ok {
			continue
		}
		byChannel[channel] = append(byChannel[channel], row)
	}

	counts := make(map[referrers.Channel]map[string]int64, len(byChannel))
	for channel, channelRows := range byChannel {
		counts[channel] = distinctPerBucket(channelRows, tf.BucketKey)
	}

	buckets := tf.Buckets()
	points := make([]AcquisitionPoint, len(buckets))
	for i, bucket := range buckets {
		points[i] = AcquisitionPoint{
			Date:     tf.Label(bucket.Start, params.DateFormat),
			Direct:   counts[referrers.ChannelDirect][bucket.Key],
			Organic:  counts[referrers.ChannelOrganic][bucket.Key],
			Social:   counts[referrers.ChannelSocial][bucket.Key],
			Referral: counts[referrers.ChannelReferral][bucket.Key],
		}
	}
	return points, nil
}

