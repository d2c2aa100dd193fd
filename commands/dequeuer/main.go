// Dequeue jobs and run the document handlers over them.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/docmill/docmill/config"
	"github.com/docmill/docmill/dequeuer"
	"github.com/docmill/docmill/files"
	"github.com/docmill/docmill/ocrengine"
	"github.com/docmill/docmill/processor"
	"github.com/docmill/docmill/services"
	"github.com/docmill/docmill/setup"
	"github.com/docmill/docmill/storage"
	"github.com/docmill/docmill/vision"
)

func checkError(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	dbConns := config.GetIntDefault("PG_WORKER_POOL_SIZE", 20)
	err := setup.DB(setup.DefaultConnection, dbConns)
	checkError(err)

	go setup.MeasureActiveQueries(1 * time.Second)
	go setup.MeasureQueueDepth(5 * time.Second)
	go setup.MeasureInProgressJobs(1 * time.Second)

	// Every minute, check for in-progress jobs that haven't reported
	// progress for 7 minutes, and mark them as failed.
	go services.WatchStuckJobs(1*time.Minute, 7*time.Minute)

	// Workers talk to the same blob store and AI provider over and over.
	config.SetMaxIdleConnsPerHost(config.GetIntDefault("HTTP_MAX_IDLE_CONNS", 100))

	metrics.Namespace = "docmill.dequeuer"
	metrics.Start("worker")

	blobs, err := storage.NewClientFromEnv()
	checkError(err)
	ai := vision.NewClientFromEnv()
	if ai == nil {
		log.Printf("No OPENAI_API_KEY configured, running without AI description/summarization")
	}
	handlers := processor.New(blobs, files.Store{}, vtoi(ai), ocrengine.Tesseract{})
	jp := services.NewJobProcessor(handlers)

	numWorkers := config.GetIntDefault("NUM_WORKERS", 4)
	pool, err := dequeuer.CreatePool(jp, numWorkers)
	checkError(err)
	log.Printf("Started %d workers", numWorkers)

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigterm
	fmt.Printf("Caught signal %v, shutting down...\n", sig)
	if err := pool.Shutdown(); err != nil {
		log.Printf("Error shutting down pool: %s\n", err.Error())
	}
	fmt.Println("Pool shut down. Quitting.")
}

// vtoi keeps a nil *vision.Client from becoming a non-nil interface value.
func vtoi(c *vision.Client) processor.Vision {
	if c == nil {
		return nil
	}
	return c
}
