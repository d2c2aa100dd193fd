package test_dequeuer

import (
	"sync"
	"testing"
	"time"

	"github.com/docmill/docmill/dequeuer"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/test"
	"github.com/docmill/docmill/test/factory"
)

// recordingWorker remembers every job handed to it.
type recordingWorker struct {
	mu   sync.Mutex
	jobs []*models.QueuedJob
	done chan struct{}
}

func (w *recordingWorker) DoWork(qj *models.QueuedJob) error {
	w.mu.Lock()
	w.jobs = append(w.jobs, qj)
	w.mu.Unlock()
	select {
	case w.done <- struct{}{}:
	default:
	}
	return nil
}

func TestWorkerShutsDown(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	pool, err := dequeuer.CreatePool(&recordingWorker{done: make(chan struct{}, 1)}, 3)
	test.AssertNotError(t, err, "")
	c1 := make(chan bool, 1)
	go func() {
		err := pool.Shutdown()
		test.AssertNotError(t, err, "")
		c1 <- true
	}()
	select {
	case <-c1:
	case <-time.After(1 * time.Second):
		t.Fatalf("pool did not shut down in 1s")
	}
}

func TestPoolProcessesEnqueuedJob(t *testing.T) {
	defer test.TearDown(t)
	qj := factory.CreateQueuedJob(t, models.TypePDFThumbnail, factory.EmptyData)

	w := &recordingWorker{done: make(chan struct{}, 1)}
	pool, err := dequeuer.CreatePool(w, 2)
	test.AssertNotError(t, err, "")
	defer pool.Shutdown()

	select {
	case <-w.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("no dequeuer picked up the job in 3s")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	test.AssertEquals(t, len(w.jobs), 1)
	test.AssertEquals(t, w.jobs[0].ID.String(), qj.ID.String())
	test.AssertEquals(t, w.jobs[0].Status, models.StatusInProgress)
	test.AssertEquals(t, w.jobs[0].Attempts, uint8(1))
}

func TestShutdownRejectsNewDequeuers(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	w := &recordingWorker{done: make(chan struct{}, 1)}
	pool, err := dequeuer.CreatePool(w, 1)
	test.AssertNotError(t, err, "")
	test.AssertNotError(t, pool.Shutdown(), "")
	err = pool.AddDequeuer(w)
	test.AssertError(t, err, "adding to a shut down pool should fail")
}
