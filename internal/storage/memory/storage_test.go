package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameauth/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.Store = New()
	s.Ctx = context.Background()
}

func (s *StorageSuite) TestRevokedTokensDoNotExpire() {
	store := s.Store.(*Storage)
	s.Require().NoError(store.RevokeToken(s.Ctx, "jti-1", 0))

	revoked, err := store.IsTokenRevoked(s.Ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)
}
