// Package main provides moderation utilities for minisocial posts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"minisocial/internal/bootstrap"
	"minisocial/internal/config"
	"minisocial/internal/models"
	"minisocial/internal/notifications"
	"minisocial/internal/repository"

	"github.com/joho/godotenv"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin/main.go recent [n]        - List the newest posts")
	fmt.Println("  go run ./cmd/admin/main.go show <post_id>    - Print one post")
	fmt.Println("  go run ./cmd/admin/main.go remove <post_id>  - Delete a post regardless of author")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipUploads: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	command := os.Args[1]

	switch command {
	case "recent":
		n := 20
		if len(os.Args) > 2 {
			if n, err = strconv.Atoi(os.Args[2]); err != nil || n <= 0 {
				log.Fatalf("Invalid count %q", os.Args[2])
			}
		}
		listRecent(ctx, rt.Posts, n)

	case "show":
		if len(os.Args) < 3 {
			usage()
		}
		showPost(ctx, rt.Posts, os.Args[2])

	case "remove":
		if len(os.Args) < 3 {
			usage()
		}
		// Live clients on any instance hear about it through redis.
		var notifier *notifications.Notifier
		if rt.Redis != nil {
			notifier = notifications.NewNotifier(rt.Redis)
		}
		removePost(ctx, rt.Posts, notifications.NewFeedBroadcaster(nil, notifier), os.Args[2])

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func listRecent(ctx context.Context, posts repository.PostRepository, n int) {
	list, err := posts.List(ctx, n, 0)
	if err != nil {
		log.Fatalf("Failed to list posts: %v", err)
	}
	if len(list) == 0 {
		fmt.Println("No posts found")
		return
	}

	fmt.Println("\n📋 Recent Posts:")
	fmt.Println("─────────────────────────────────────")
	for _, p := range list {
		fmt.Printf("%s | %s | %s (ID: %d) | likes: %d | comments: %d\n",
			p.ID, p.CreatedAt.Format(time.RFC3339), p.AuthorName, p.AuthorID, len(p.Likes), len(p.Comments))
	}
	fmt.Println("─────────────────────────────────────")
}

func showPost(ctx context.Context, posts repository.PostRepository, id string) {
	p, err := posts.GetByID(ctx, id)
	if err != nil {
		exitOnLookup(id, err)
	}
	fmt.Printf("ID:       %s\n", p.ID)
	fmt.Printf("Author:   %s (ID: %d)\n", p.AuthorName, p.AuthorID)
	fmt.Printf("Created:  %s\n", p.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Image:    %s\n", p.Image)
	fmt.Printf("Likes:    %v\n", p.Likes)
	fmt.Printf("Content:\n%s\n", p.Content)
	for _, c := range p.Comments {
		fmt.Printf("  💬 %s: %s\n", c.Username, c.Text)
	}
}

func removePost(ctx context.Context, posts repository.PostRepository, b notifications.Broadcaster, id string) {
	if err := posts.Delete(ctx, id); err != nil {
		exitOnLookup(id, err)
	}
	if err := b.Broadcast(ctx, notifications.EventPostDeleted, id); err != nil {
		log.Printf("⚠️  Post deleted but the feed was not notified: %v", err)
	}
	fmt.Printf("✅ Removed post %s\n", id)
}

func exitOnLookup(id string, err error) {
	if errors.Is(err, models.ErrPostNotFound) {
		fmt.Printf("Post with ID %s not found\n", id)
		os.Exit(1)
	}
	log.Fatalf("Store error: %v", err)
}
