package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dagdev/vpnbill/internal/cache"
	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository fakes for testing
type Stores struct {
	InvoiceRepo *InMemoryInvoiceStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx         context.Context
	stores      Stores
	provisioner *FakeProvisioner
	notifier    *RecordingNotifier
	messenger   *RecordingMessenger
	cache       cache.Cache
	logger      *logger.Logger
	config      *config.Configuration
	tariffs     *types.TariffCatalog

	clockMu sync.Mutex
	now     time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelInfo
	s.config.Telegram.AdminIDs = []int64{1001, 1002}
	s.logger = logger.NewNopLogger()
	s.tariffs = types.NewTariffCatalog(nil)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	s.setupStores()
	s.provisioner = NewFakeProvisioner()
	s.notifier = NewRecordingNotifier()
	s.messenger = NewRecordingMessenger()
	s.cache = cache.NewInMemoryCache()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.InvoiceRepo.Clear()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		InvoiceRepo: NewInMemoryInvoiceStore(),
	}
	s.stores.InvoiceRepo.SetClock(s.Now)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetProvisioner() *FakeProvisioner {
	return s.provisioner
}

func (s *BaseServiceTestSuite) GetNotifier() *RecordingNotifier {
	return s.notifier
}

func (s *BaseServiceTestSuite) GetMessenger() *RecordingMessenger {
	return s.messenger
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetTariffs() *types.TariffCatalog {
	return s.tariffs
}

// Now is the suite clock shared by the store and the services under test
func (s *BaseServiceTestSuite) Now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.now
}

// Advance moves the suite clock forward
func (s *BaseServiceTestSuite) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = s.now.Add(d)
}
