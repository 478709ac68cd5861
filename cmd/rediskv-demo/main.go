// Command rediskv-demo runs a short SET/GET, INCR, LPUSH, LRANGE session
// against a Redis-compatible server and prints each result.
//
// With --ref it runs the same session against a reference Redis as well and
// reports any reply that differs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// step is one command of the session and its printable reply
type step struct {
	label string
	run   func(ctx context.Context, c *redis.Client) (string, error)
}

var session = []step{
	{"set mykey", func(ctx context.Context, c *redis.Client) (string, error) {
		return c.Set(ctx, "mykey", "Hello, Redis in Docker!", 0).Result()
	}},
	{"get mykey", func(ctx context.Context, c *redis.Client) (string, error) {
		return c.Get(ctx, "mykey").Result()
	}},
	{"incr counter", func(ctx context.Context, c *redis.Client) (string, error) {
		n, err := c.Incr(ctx, "counter").Result()
		return fmt.Sprint(n), err
	}},
	{"lpush mylist item1", func(ctx context.Context, c *redis.Client) (string, error) {
		n, err := c.LPush(ctx, "mylist", "item1").Result()
		return fmt.Sprint(n), err
	}},
	{"lpush mylist item2", func(ctx context.Context, c *redis.Client) (string, error) {
		n, err := c.LPush(ctx, "mylist", "item2").Result()
		return fmt.Sprint(n), err
	}},
	{"lrange mylist 0 -1", func(ctx context.Context, c *redis.Client) (string, error) {
		items, err := c.LRange(ctx, "mylist", 0, -1).Result()
		return fmt.Sprint(items), err
	}},
}

func main() {
	var addrFlag = flag.String("addr", "localhost:6379", "Server to run the session against (host:port)")
	var passwordFlag = flag.String("password", "", "Password for AUTH")
	var refFlag = flag.String("ref", "", "Optional reference Redis endpoint to compare replies with")
	var flushFlag = flag.Bool("flush", true, "Run FLUSHALL before the session")
	var helpFlag = flag.Bool("help", false, "Show help message")

	flag.Parse()

	if *helpFlag {
		fmt.Println("rediskv demo session")
		fmt.Println("====================")
		fmt.Println("Usage: rediskv-demo [--addr=host:port] [--password=pw] [--ref=host:port]")
		fmt.Println("")
		fmt.Println("Example:")
		fmt.Println("  rediskv-demo --addr=localhost:6379 --ref=localhost:6380")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	replies, err := runSession(ctx, *addrFlag, *passwordFlag, *flushFlag)
	if err != nil {
		log.Fatalf("Session against %s failed: %v", *addrFlag, err)
	}

	for i, s := range session {
		fmt.Printf("%-20s %s\n", s.label, replies[i])
	}

	if *refFlag == "" {
		return
	}

	refReplies, err := runSession(ctx, *refFlag, *passwordFlag, *flushFlag)
	if err != nil {
		log.Fatalf("Session against reference %s failed: %v", *refFlag, err)
	}

	fmt.Println()
	differences := 0
	for i, s := range session {
		if replies[i] != refReplies[i] {
			fmt.Printf("❌ %s: REF=%q, SUT=%q\n", s.label, refReplies[i], replies[i])
			differences++
		}
	}

	if differences == 0 {
		fmt.Println("✅ All replies match the reference")
		return
	}
	fmt.Printf("Found %d difference(s)\n", differences)
	os.Exit(1)
}

// runSession executes every step against addr. Error replies are recorded
// as text so they can be compared too.
func runSession(ctx context.Context, addr, password string, flush bool) ([]string, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if flush {
		if err := client.FlushAll(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to flush: %w", err)
		}
	}

	replies := make([]string, 0, len(session))
	for _, s := range session {
		reply, err := s.run(ctx, client)
		if err != nil {
			if _, ok := err.(redis.Error); !ok {
				return nil, fmt.Errorf("%s: %w", s.label, err)
			}
			reply = "(error) " + err.Error()
		}
		replies = append(replies, reply)
	}
	return replies, nil
}
