package http

import (
	"strings"

	"tally/internal/apperr"
	"tally/internal/auth"
	"tally/internal/queryapi"
	"tally/internal/users"
	"tally/internal/websites"
)

type registerVariables struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginVariables struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (v *loginVariables) Validate() error {
	if strings.TrimSpace(v.Email) == "" || v.Password == "" {
		return apperr.Validation("Email and password are required")
	}
	return nil
}

type preferencesVariables struct {
	Timezone   string `json:"timezone"`
	DateFormat string `json:"dateFormat"`
}

// AccountOperations registers sign-up, login and preference operations.
func AccountOperations() queryapi.OperationSet {
	return queryapi.OperationSet{
		Area: "account",
		Operations: []queryapi.Operation{
			{Name: "addUserWithHash", Aliases: []string{"register", "createUserWithHash"}, Handler: registerOperation},
			{Name: "login", Handler: loginOperation},
			{Name: "addUserPreferences", Handler: preferencesOperation},
			{Name: "me", Handler: meOperation},
		},
	}
}

func registerOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to create user"

	var vars registerVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	user, err := users.Register(req.DB(), req.Logger, vars.Name, vars.Email, vars.Password)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	return queryapi.OK("User created successfully", newUserPayload(user, nil))
}

func loginOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to log in"

	var vars loginVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	db := req.DB()
	user, err := users.Authenticate(db, vars.Email, vars.Password)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	sites, err := websites.ListForUser(db, user.ID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	token, err := auth.IssueTokenAt(user.ID, user.Email, req.Now)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	return queryapi.OK("Login successful", loginPayload{
		Token: token,
		User:  newUserPayload(user, sites),
	})
}

func preferencesOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to save preferences"

	userID, err := auth.AssertAuthenticated(req.Identity)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	var vars preferencesVariables
	if err := queryapi.Decode(req, &vars); err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	db := req.DB()
	user, err := users.SetPreferences(db, req.Logger, userID, vars.Timezone, vars.DateFormat)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	sites, err := websites.ListForUser(db, user.ID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	return queryapi.OK("Preferences saved successfully", newUserPayload(user, sites))
}

func meOperation(req *queryapi.Request) queryapi.Envelope {
	const failed = "Failed to fetch user"

	userID, err := auth.AssertAuthenticated(req.Identity)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	db := req.DB()
	user, err := users.FindByID(db, userID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	sites, err := websites.ListForUser(db, user.ID)
	if err != nil {
		return queryapi.Failure(req, err, failed, nil)
	}

	return queryapi.OK("User fetched successfully", newUserPayload(user, sites))
}
