package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

// IntegrationTestSuite runs tests against file-backed buckets in a fresh
// temporary directory per test.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	bucket    *storage.FileBucket
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.startTime = time.Now()
}

// SetupTest creates the per-test context and bucket
func (s *IntegrationTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)

	bucket, err := storage.NewFileBucket(s.T().TempDir())
	require.NoError(s.T(), err)
	s.bucket = bucket
}

// TearDownTest cancels the per-test context
func (s *IntegrationTestSuite) TearDownTest() {
	s.cancel()
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// Bucket returns the file bucket of the current test
func (s *IntegrationTestSuite) Bucket() *storage.FileBucket {
	return s.bucket
}
