package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "support:session:"

func newMockedStore(t *testing.T, ttl time.Duration) (*RedisStore, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, testPrefix, ttl)
	store.newID = func() string { return "fixed-session" }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return store, mock
}

func TestRedisIssueStoresHashedKey(t *testing.T) {
	store, mock := newMockedStore(t, time.Hour)
	key := testPrefix + hashID("fixed-session")
	mock.ExpectSet(key, 1, time.Hour).SetVal("OK")

	id, err := store.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-session", id)
	assert.NotContains(t, key, "fixed-session")
}

func TestRedisIssueFails(t *testing.T) {
	store, mock := newMockedStore(t, time.Hour)
	mock.ExpectSet(testPrefix+hashID("fixed-session"), 1, time.Hour).SetErr(errors.New("connection refused"))

	_, err := store.Issue(context.Background())
	assert.Error(t, err)
}

func TestRedisTouchExtendsLiveSession(t *testing.T) {
	store, mock := newMockedStore(t, time.Hour)
	mock.ExpectExpire(testPrefix+hashID("known"), time.Hour).SetVal(true)
	mock.ExpectExpire(testPrefix+hashID("stranger"), time.Hour).SetVal(false)

	ok, err := store.Touch(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Touch(context.Background(), "stranger")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTouchWithoutTTLChecksExistence(t *testing.T) {
	store, mock := newMockedStore(t, 0)
	mock.ExpectExists(testPrefix + hashID("known")).SetVal(1)

	ok, err := store.Touch(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Touch(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
