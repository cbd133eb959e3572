package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func main() {
	baseURL := "http://localhost:4000/api"
	token := os.Getenv("EXTENSION_TOKEN")
	if token == "" {
		log.Fatal("EXTENSION_TOKEN is required")
	}

	var successCount int64
	var errorCount int64
	var wg sync.WaitGroup

	numRequests := 1000
	concurrentWorkers := 50

	startTime := time.Now()

	jobs := make(chan int, numRequests)
	results := make(chan bool, numRequests)

	// start workers
	for w := 0; w < concurrentWorkers; w++ {
		wg.Add(1)
		go worker(w, jobs, results, baseURL, token, &wg)
	}

	// send jobs
	for j := 0; j < numRequests; j++ {
		jobs <- j
	}
	close(jobs)

	wg.Wait()
	close(results)

	for result := range results {
		if result {
			atomic.AddInt64(&successCount, 1)
		} else {
			atomic.AddInt64(&errorCount, 1)
		}
	}

	duration := time.Since(startTime)
	requestsPerSecond := float64(numRequests) / duration.Seconds()

	fmt.Println("Load Test Results:")
	fmt.Println("==================")
	fmt.Printf("Total Requests: %d\n", numRequests)
	fmt.Printf("Successful: %d\n", successCount)
	fmt.Printf("Failed: %d\n", errorCount)
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Requests/sec: %.2f\n", requestsPerSecond)
	fmt.Printf("Success Rate: %.2f%%\n",
		float64(successCount)/float64(numRequests)*100)
}

func worker(
	id int,
	jobs <-chan int,
	results chan<- bool,
	baseURL, token string,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	for range jobs {
		payload := map[string]interface{}{
			"model":       "chatgpt",
			"inputTokens": 25,
			"co2":         0.05,
			"eventId":     uuid.New().String(),
		}

		jsonData, _ := json.Marshal(payload)

		req, err := http.NewRequest(
			"POST",
			baseURL+"/prompt",
			bytes.NewBuffer(jsonData),
		)
		if err != nil {
			results <- false
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("Worker %d error: %v\n", id, err)
			results <- false
			continue
		}

		success := resp.StatusCode >= 200 && resp.StatusCode < 300
		resp.Body.Close()

		results <- success

		time.Sleep(10 * time.Millisecond)
	}
}
