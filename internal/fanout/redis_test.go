package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestRedisDeliveryCache_NilIsNoop(t *testing.T) {
	var c *RedisDeliveryCache
	assert.NoError(t, c.Append(context.Background(), "alice", []byte("x")))
	msgs, err := c.Recent(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Empty(t, msgs)

	c = NewRedisDeliveryCache(nil, 0, 0)
	assert.Equal(t, int64(50), c.size)
	assert.Equal(t, 2*time.Minute, c.ttl)
	assert.NoError(t, c.Append(context.Background(), "alice", []byte("x")))
}

func TestRedisBroker_WithoutClientUsesLocal(t *testing.T) {
	local := &fakeTransport{}
	b := NewRedisBroker(nil, "", local, nil)
	assert.Equal(t, DefaultChannel, b.channel)

	msg, err := NewMessage(EventNew, Payload{ID: "n1"}, time.Now())
	require.NoError(t, err)
	raw, err := msg.Encode()
	require.NoError(t, err)

	require.NoError(t, b.Emit(context.Background(), []string{"user:alice"}, raw))
	require.Len(t, local.sent, 1)
	assert.Equal(t, []string{"user:alice"}, local.sent[0].rooms)
}

// RedisIntegrationTestSuite runs against a real Redis on localhost:6379.
type RedisIntegrationTestSuite struct {
	suite.Suite
	client *redis.Client
}

func (s *RedisIntegrationTestSuite) SetupSuite() {
	s.client = redis.NewClient(&redis.Options{
		Addr:        "localhost:6379",
		DB:          15,
		DialTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.T().Skip("Redis not available, skipping integration tests")
	}
}

func (s *RedisIntegrationTestSuite) SetupTest() {
	s.client.FlushDB(context.Background())
}

func (s *RedisIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RedisIntegrationTestSuite) TestDeliveryCacheCapsAndReplaysOldestFirst() {
	ctx := context.Background()
	c := NewRedisDeliveryCache(s.client, 3, time.Minute)

	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		s.Require().NoError(c.Append(ctx, "alice", []byte(m)))
	}

	msgs, err := c.Recent(ctx, "alice")
	s.Require().NoError(err)
	s.Equal([][]byte{[]byte("m2"), []byte("m3"), []byte("m4")}, msgs)

	ttl, err := s.client.TTL(ctx, deliveryKey("alice")).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisIntegrationTestSuite) TestBrokerReplaysIntoLocalTransport() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := &fakeTransport{}
	b := NewRedisBroker(s.client, "uniportal:test", local, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Run(ctx)
	}()

	msg, err := NewMessage(EventUpdated, Payload{ID: "n1", ToUserID: "alice"}, time.Now())
	s.Require().NoError(err)
	raw, err := msg.Encode()
	s.Require().NoError(err)

	// the subscriber may not be attached yet, so keep publishing until it is
	s.Eventually(func() bool {
		_ = b.Emit(ctx, []string{"user:alice", RoomSuperAdmins}, raw)
		local.mu.Lock()
		defer local.mu.Unlock()
		return len(local.sent) > 0
	}, 3*time.Second, 50*time.Millisecond)

	local.mu.Lock()
	first := local.sent[0]
	local.mu.Unlock()
	s.Equal([]string{"user:alice", RoomSuperAdmins}, first.rooms)
	s.Equal(EventUpdated, first.msg.Event)

	cancel()
	wg.Wait()
}

func TestRedisIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationTestSuite))
}
