// Command main runs the feed seeder for minisocial.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"minisocial/internal/bootstrap"
	"minisocial/internal/config"
	"minisocial/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Parse command line flags
	numUsers := flag.Int("users", 20, "Number of fake authors")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	shouldClean := flag.Bool("clean", false, "Delete all posts before seeding")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible runs (0 = time based)")
	flag.Parse()

	log.Println("🌱 Feed Seeder")
	log.Println("==============")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Seeding never uploads, and the cache layer would only be invalidated.
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipRedis: true, SkipUploads: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	s := seed.NewSeeder(rt.Posts, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		ShouldClean: *shouldClean,
		DryRun:      *dryRun,
		RandSeed:    *randSeed,
	})
	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your feed is now populated with test data.")
}
