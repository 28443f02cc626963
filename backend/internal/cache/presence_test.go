package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func presenceForTest(t *testing.T) (PresenceCache, *redis.Client) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return NewRedisPresence(rdb), rdb
}

func TestPresence_AddAndList(t *testing.T) {
	p, _ := presenceForTest(t)
	ctx := context.Background()

	if err := p.AddMember(ctx, "doc1", 1, "ada", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, "doc1", 2, "grace", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembers(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetAliveMembers error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	names := map[uint64]string{}
	for _, m := range members {
		names[m.UserID] = m.Username
	}
	if names[1] != "ada" || names[2] != "grace" {
		t.Fatalf("names = %v, want ada and grace", names)
	}
}

func TestPresence_ExpiredMembersCleaned(t *testing.T) {
	p, _ := presenceForTest(t)
	ctx := context.Background()

	// Already past its logical expiry.
	if err := p.AddMember(ctx, "doc1", 1, "ada", -time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	members, err := p.GetAliveMembers(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetAliveMembers error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("members = %v, want none", members)
	}
}

func TestPresence_Cursor(t *testing.T) {
	p, _ := presenceForTest(t)
	ctx := context.Background()

	payload := []byte(`{"position":12}`)
	if err := p.SetCursor(ctx, "doc1", 1, payload, time.Minute); err != nil {
		t.Fatalf("SetCursor error: %v", err)
	}
	got, err := p.GetCursor(ctx, "doc1", 1)
	if err != nil {
		t.Fatalf("GetCursor error: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("GetCursor = %s, want %s", got, payload)
	}
}
