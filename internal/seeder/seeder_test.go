package seeder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/events"
	"tally/internal/seeder"
	"tally/internal/testsupport"
	"tally/internal/users"
	"tally/internal/websites"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	s := seeder.NewSeeder(dbManager, logger, 60).WithSeed(42)
	require.NoError(t, s.Run(context.Background()))

	user, err := users.Authenticate(db, seeder.DemoEmail, seeder.DemoPassword)
	require.NoError(t, err)

	sites, err := websites.ListForUser(db, user.ID)
	require.NoError(t, err)
	require.Len(t, sites, len(seeder.DefaultDomains))

	for _, site := range sites {
		var count int64
		require.NoError(t, db.Model(&events.Visit{}).Where("site_id = ?", site.ID).Count(&count).Error)
		assert.Equal(t, int64(20), count, site.Domain)
	}

	t.Run("running again reuses the account and sites", func(t *testing.T) {
		require.NoError(t, s.Run(context.Background()))

		again, err := websites.ListForUser(db, user.ID)
		require.NoError(t, err)
		assert.Len(t, again, len(seeder.DefaultDomains))

		var total int64
		require.NoError(t, db.Model(&events.Visit{}).Count(&total).Error)
		assert.Equal(t, int64(120), total)
	})
}

func TestSeedDomain(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "seed@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "seeded.dev")

	s := seeder.NewSeeder(dbManager, logger, 15).WithSeed(7)
	created, err := s.SeedDomain(context.Background(), "https://seeded.dev/")
	require.NoError(t, err)
	assert.Equal(t, 15, created)

	var visits []events.Visit
	require.NoError(t, db.Where("site_id = ?", site.ID).Find(&visits).Error)
	require.Len(t, visits, 15)
	for _, visit := range visits {
		assert.Contains(t, visit.URL, "https://seeded.dev/")
		assert.NotEmpty(t, visit.VisitorID)
	}

	_, err = s.SeedDomain(context.Background(), "missing.dev")
	assert.Error(t, err)
}
