package http

import (
	"time"

	"tally/internal/users"
	"tally/internal/websites"
)

type sitePayload struct {
	ID             uint      `json:"id"`
	Domain         string    `json:"domain"`
	PublicKey      string    `json:"publicKey"`
	ScriptVerified bool      `json:"scriptVerified"`
	CreatedAt      time.Time `json:"createdAt"`
}

type userPayload struct {
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Timezone   string        `json:"timezone"`
	DateFormat string        `json:"dateFormat"`
	PrefSet    bool          `json:"prefSet"`
	Sites      []sitePayload `json:"sites"`
}

type loginPayload struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type verificationPayload struct {
	Status websites.VerificationStatus `json:"status"`
	Site   sitePayload                 `json:"site"`
}

func newSitePayload(site *websites.Site) sitePayload {
	return sitePayload{
		ID:             site.ID,
		Domain:         site.Domain,
		PublicKey:      site.PublicKey,
		ScriptVerified: site.ScriptVerified,
		CreatedAt:      site.CreatedAt,
	}
}

func newSitePayloads(sites []websites.Site) []sitePayload {
	payloads := make([]sitePayload, len(sites))
	for i := range sites {
		payloads[i] = newSitePayload(&sites[i])
	}
	return payloads
}

func newUserPayload(user *users.User, sites []websites.Site) userPayload {
	return userPayload{
		Name:       user.Name,
		Email:      user.Email,
		Timezone:   user.Timezone,
		DateFormat: user.DateFormat,
		PrefSet:    user.PrefSet,
		Sites:      newSitePayloads(sites),
	}
}
