package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tally/internal"
	"tally/internal/config"
	"tally/internal/database"
	"tally/internal/events"
	"tally/internal/users"
	"tally/internal/websites"
)

// testDBCache caches test databases by root test name so subtests and
// helpers called with the outer t share one database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestConfig forces the test environment and reloads the config.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("TALLY_ENV") == "" {
		t.Setenv("TALLY_ENV", config.Test)
	}
	config.Reset()
	return config.GetConfig()
}

// SetupTestDB creates a named in-memory database with every model migrated.
// cache=shared lets the pool's connections see the same data.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager returns a DB manager over the test database.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	cfg := SetupTestConfig(t)

	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set TALLY_ENV=test", cfg.Environment)
	}

	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CreateTestUserForAuth creates a user with a real bcrypt hash.
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &users.User{
		Name:              strings.Split(email, "@")[0],
		Email:             users.NormalizeEmail(email),
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestSite registers a site for userID with a fresh key.
func CreateTestSite(t *testing.T, db *gorm.DB, userID uint, domain string) websites.Site {
	t.Helper()

	site := websites.Site{
		UserID:    userID,
		Domain:    domain,
		PublicKey: websites.GenerateKey(domain),
	}
	require.NoError(t, db.Create(&site).Error)
	return site
}

// CreateTestVisit appends a desktop visit at createdAt.
func CreateTestVisit(t *testing.T, db *gorm.DB, siteID uint, visitorID, sessionID, url, referrer string, createdAt time.Time) events.Visit {
	t.Helper()

	visit := events.Visit{
		SiteID:     siteID,
		VisitorID:  visitorID,
		SessionID:  sessionID,
		URL:        url,
		Referrer:   referrer,
		UserAgent:  "Mozilla/5.0 Test Browser",
		DeviceType: "desktop",
		OS:         "Unknown",
		Browser:    "Unknown",
		CreatedAt:  createdAt.UTC(),
	}
	require.NoError(t, db.Create(&visit).Error)
	return visit
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp mounts the real routes on a cartridge server backed
// by db, for app.Test requests.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	appConfig := SetupTestConfig(t)

	cfg := internal.NewServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
