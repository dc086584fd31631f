package http

import (
	"tally/internal/apperr"
	"tally/internal/auth"
	"tally/internal/queryapi"
	"tally/internal/websites"
)

type addSiteVariables struct {
	Domain string `json:"domain"`
}

type siteVariables struct {
	SiteID uint `json:"siteId"`
}

func (v *siteVariables) Validate() error {
	if v.SiteID == 0 {
		return apperr.Validation("siteId is required")
	}
	return nil
}

var verificationMessages = map[websites.VerificationStatus]string{
	websites.StatusVerified:    "Tracking script verified",
	websites.StatusNotDetected: "No tracking data received yet",
	websites.StatusWrongDomain: "Tracking data is arriving from a different domain",
}

// SitesOperations registers site registration, listing and verification.
func SitesOperations() queryapi.OperationSet {
	return queryapi.OperationSet{
		Area: "sites",
		Operations: []queryapi.Operation{
			{Name: "addSite", Handler: addSiteOperation},
			{Name: "mySites", Handler: mySitesOperation},
			{Name: "verifySiteScript", Handler: verifySiteScriptOperation},
		},
	}
}

func addSiteOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to add site"

	userID, err := auth.AssertAuthenticated(req.Identity)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	var vars addSiteVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	site, err := websites.RegisterSite(req.DB(), req.Logger, userID, vars.Domain)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	return queryapi.OK("Site added successfully", newSitePayload(site))
}

func mySitesOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to fetch sites"

	userID, err := auth.AssertAuthenticated(req.Identity)
	if err != nil {
		return queryapi.Failure(req, err, failed, []sitePayload{})
	}

	sites, err := websites.ListForUser(req.DB(), userID)
	if err != nil {
		return queryapi.Failure(req, err, failed, []sitePayload{})
	}

	return queryapi.OK("Sites fetched successfully", newSitePayloads(sites))
}

// verifySiteScriptOperation succeeds only once the script is seen on the
// registered domain; the other statuses come back as failures carrying the
// status so clients can explain what is wrong.
func verifySiteScriptOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to verify site"

	var vars siteVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	db := req.DB()
	site, err := auth.AuthorizeSiteAccess(db, req.Identity, vars.SiteID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	status, err := websites.VerifyScript(db, req.Logger, site.ID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	site.ScriptVerified = status == websites.StatusVerified
	payload := verificationPayload{Status: status, Site: newSitePayload(site)}
	if status != websites.StatusVerified {
		return queryapi.Fail(verificationMessages[status], payload)
	}
	return queryapi.OK(verificationMessages[status], payload)
}
