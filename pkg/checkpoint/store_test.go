package checkpoint

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestNewStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewStore(client)
	if store == nil {
		t.Fatal("NewStore returned nil")
	}
	if store.redis != client {
		t.Error("Store redis client not set correctly")
	}
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with nil redis client")
		}
	}()
	NewStore(nil)
}
