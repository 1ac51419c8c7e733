// Command sse_load stress-tests the /snapshot/stream endpoint: it opens
// many concurrent SSE subscribers, decodes every pushed snapshot and
// reports throughput plus the worst observed propagation lag between a
// snapshot's build time and its arrival at the client.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/snapshot/stream", "snapshot stream URL")
	flag.IntVar(&connections, "conns", 500, "concurrent subscribers")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 runs until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscriber starts across this window")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500) * time.Second
		if rampUp < time.Second {
			rampUp = time.Second
		}
		log.Printf("using default ramp-up %s for %d subscribers", rampUp, connections)
	}

	log.Printf("starting: url=%s conns=%d dur=%s ramp=%s", targetURL, connections, duration, rampUp)

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		Timeout: 0, // streaming
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("caught %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if duration > 0 {
		go func() {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var (
		connected   int64
		connectErrs int64
		streamErrs  int64
		snapshots   int64
		decodeErrs  int64
		maxLagNanos int64
	)

	recordLag := func(builtAt time.Time) {
		lag := time.Since(builtAt).Nanoseconds()
		for {
			cur := atomic.LoadInt64(&maxLagNanos)
			if lag <= cur || atomic.CompareAndSwapInt64(&maxLagNanos, cur, lag) {
				return
			}
		}
	}

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < connections; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
			if err != nil {
				atomic.AddInt64(&connectErrs, 1)
				return
			}
			req.Header.Set("Accept", "text/event-stream")

			resp, err := client.Do(req)
			if err != nil {
				atomic.AddInt64(&connectErrs, 1)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				atomic.AddInt64(&connectErrs, 1)
				return
			}
			atomic.AddInt64(&connected, 1)

			reader := bufio.NewReader(resp.Body)
			for {
				if ctx.Err() != nil {
					return
				}
				line, err := reader.ReadString('\n')
				if err != nil {
					if ctx.Err() == nil {
						atomic.AddInt64(&streamErrs, 1)
					}
					return
				}
				payload, ok := strings.CutPrefix(line, "data: ")
				if !ok {
					continue // heartbeat or separator
				}

				var snap struct {
					BuiltAt time.Time `json:"built_at"`
				}
				if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &snap); err != nil {
					atomic.AddInt64(&decodeErrs, 1)
					continue
				}
				atomic.AddInt64(&snapshots, 1)
				if !snap.BuiltAt.IsZero() {
					recordLag(snap.BuiltAt)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("connected=%d connect_errs=%d stream_errs=%d snapshots=%d decode_errs=%d max_lag=%s",
					atomic.LoadInt64(&connected),
					atomic.LoadInt64(&connectErrs),
					atomic.LoadInt64(&streamErrs),
					atomic.LoadInt64(&snapshots),
					atomic.LoadInt64(&decodeErrs),
					time.Duration(atomic.LoadInt64(&maxLagNanos)).Truncate(time.Millisecond),
				)
			}
		}
	}()

	wg.Wait()
	cancel()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d snapshots=%d decode_errs=%d elapsed=%s snapshots/s=%.2f max_lag=%s\n",
		atomic.LoadInt64(&connected),
		atomic.LoadInt64(&connectErrs),
		atomic.LoadInt64(&streamErrs),
		atomic.LoadInt64(&snapshots),
		atomic.LoadInt64(&decodeErrs),
		elapsed.Truncate(time.Millisecond),
		float64(atomic.LoadInt64(&snapshots))/elapsed.Seconds(),
		time.Duration(atomic.LoadInt64(&maxLagNanos)).Truncate(time.Millisecond),
	)
}
