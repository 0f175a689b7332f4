// Package main provides a load and watch tool for the feed WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	PostsCreated         int64
	MessagesReceived     int64
	Errors               int64

	mu     sync.Mutex
	byType map[string]int64
}

func (m *Metrics) countType(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byType == nil {
		m.byType = make(map[string]int64)
	}
	m.byType[t]++
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:5000", "API server host")
	token := flag.String("token", "", "Bearer token; required for -post-every")
	clients := flag.Int("clients", 50, "Number of concurrent feed sockets")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	postEvery := flag.Duration("post-every", 0, "Create a post at this interval (0 = watch only)")
	verbose := flag.Bool("v", false, "Log every received event")
	flag.Parse()

	if *postEvery > 0 && *token == "" {
		log.Fatal("❌ -post-every needs -token")
	}

	log.Printf("🚀 Starting Feed Watch")
	log.Printf("Target: %s", *host)
	log.Printf("Clients: %d", *clients)
	log.Printf("Duration: %v", *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(*host, *token, i, *verbose, stopChan, &wg)
		time.Sleep(20 * time.Millisecond) // Stagger connections
	}

	if *postEvery > 0 {
		wg.Add(1)
		go runPoster(*host, *token, *postEvery, stopChan, &wg)
	}

	// Wait for duration or interrupt
	select {
	case <-time.After(*duration):
		log.Println("⏱️  Test duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func createPost(host, token string, n int) error {
	body, _ := json.Marshal(map[string]string{
		"content": fmt.Sprintf("feedwatch post #%d at %s", n, time.Now().Format(time.RFC3339)),
	})
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/posts", host), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create post failed with status %d", resp.StatusCode)
	}
	return nil
}

func runPoster(host, token string, every time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			if err := createPost(host, token, n); err != nil {
				log.Printf("⚠️  %v", err)
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.PostsCreated, 1)
		}
	}
}

func runClient(host, token string, id int, verbose bool, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws"}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.MessagesReceived, 1)

			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
				metrics.countType("unknown")
				continue
			}
			metrics.countType(env.Type)
			if verbose {
				log.Printf("[client %d] %s", id, env.Type)
			}
		}
	}()

	select {
	case <-stopChan:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
		atomic.AddInt64(&metrics.Errors, 1)
	}
}

func printMetrics() {
	log.Println("\n📊 Results")
	log.Println("==========")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Posts Created: %d", atomic.LoadInt64(&metrics.PostsCreated))
	log.Printf("Messages Received: %d", atomic.LoadInt64(&metrics.MessagesReceived))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	types := make([]string, 0, len(metrics.byType))
	for t := range metrics.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		log.Printf("  %-16s %d", t, metrics.byType[t])
	}
}
