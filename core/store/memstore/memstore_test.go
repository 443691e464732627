package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store"
)

type fakeSession struct{ token string }

func (s *fakeSession) Clone() *fakeSession {
	cp := *s
	return &cp
}

func TestSessionStore_ClonesOnReadAndWrite(t *testing.T) {
	notFound := errors.New("missing")
	s := NewSessionStore[*fakeSession](notFound)

	_, err := s.LoadSession()
	require.ErrorIs(t, err, notFound)

	orig := &fakeSession{token: "a"}
	require.NoError(t, s.SaveSession(orig))
	orig.token = "mutated"

	got, err := s.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "a", got.token)

	require.NoError(t, s.ClearSession())
	_, err = s.LoadSession()
	assert.ErrorIs(t, err, notFound)
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()

	_, err := s.GetUserData(ctx, "alice@host", store.KeyDisplayName)
	require.ErrorIs(t, err, store.ErrUserDataNotFound)

	require.NoError(t, s.SetUserData(ctx, "alice@host", store.KeyDisplayName, "Alice"))
	require.NoError(t, s.SetUserData(ctx, "alice@host", store.KeyDisplayName, "Alice B."))
	v, err := s.GetUserData(ctx, "alice@host", store.KeyDisplayName)
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", v)
}

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	r := NewProfileRepository()

	_, err := r.Get(ctx, "bob@host")
	require.ErrorIs(t, err, store.ErrProfileNotFound)
	require.ErrorIs(t, r.Update(ctx, &model.UserProfile{}), store.ErrInvalidProfile)

	p := model.NewUserProfile("bob@host", model.UserInfo{ID: "bob", DisplayName: "Bob"})
	p.Avatar = &model.UserAvatar{CacheKey: "avatars/bob/64", MimeType: "image/png", ETag: "v1"}
	require.NoError(t, r.Update(ctx, p))

	require.NoError(t, r.DeleteAvatar(ctx, "bob@host"))
	got, err := r.Get(ctx, "bob@host")
	require.NoError(t, err)
	assert.Nil(t, got.Avatar)
	assert.Equal(t, "Bob", got.DisplayName)
	assert.NotNil(t, p.Avatar, "仓库内部修改不应影响调用方对象")

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, r.Delete(ctx, "bob@host"))
	_, err = r.Get(ctx, "bob@host")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}
