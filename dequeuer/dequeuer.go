// The dequeuer retrieves jobs from the database and does some work.
package dequeuer

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Shyp/go-dberror"
	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/queued_jobs"
)

const defaultSleepFactor = 2

// 10ms * 2^10 ~ 10 seconds between attempts
var maxMultiplier = math.Pow(2, 10)

func init() {
	rand.Seed(time.Now().UnixNano())
}

// CreatePool starts numDequeuers dequeuers pulling from the shared queue.
// The provided Worker w is shared between all of them, so it must be thread
// safe.
func CreatePool(w Worker, numDequeuers int) (*Pool, error) {
	p := NewPool()
	for i := 0; i < numDequeuers; i++ {
		if err := p.AddDequeuer(w); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func NewPool() *Pool {
	return &Pool{}
}

// A Pool contains an array of dequeuers, all pulling from the same
// priority-ordered queue.
type Pool struct {
	Dequeuers              []*Dequeuer
	receivedShutdownSignal bool
	mu                     sync.Mutex
	wg                     sync.WaitGroup
}

type Dequeuer struct {
	ID       int
	QuitChan chan bool
	W        Worker
	// How long to sleep if there is no work to do.
	sleepFactor float64
}

// A Worker does some work with a QueuedJob. Worker implementations may be
// shared and should be threadsafe.
type Worker interface {
	// DoWork runs the queued job to a terminal state or a retry. The job's
	// success or failure is recorded via services.HandleStatusCallback;
	// errors returned here are logged, but otherwise nothing else is done
	// with them.
	DoWork(*models.QueuedJob) error
}

// AddDequeuer adds a Dequeuer to the Pool. w should be the work that the
// Dequeuer will do with a dequeued job.
func (p *Pool) AddDequeuer(w Worker) error {
	if p.receivedShutdownSignal {
		return poolShutdown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d := &Dequeuer{
		ID:          len(p.Dequeuers) + 1,
		QuitChan:    make(chan bool, 1),
		W:           w,
		sleepFactor: defaultSleepFactor,
	}
	p.Dequeuers = append(p.Dequeuers, d)
	p.wg.Add(1)
	go d.Work(&p.wg)
	return nil
}

var emptyPool = errors.New("No workers left to dequeue")
var poolShutdown = errors.New("Cannot add worker because the pool is shutting down")

// RemoveDequeuer removes a dequeuer from the pool and sends that dequeuer
// a shutdown signal.
func (p *Pool) RemoveDequeuer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Dequeuers) == 0 {
		return emptyPool
	}
	dq := p.Dequeuers[0]
	p.Dequeuers = append(p.Dequeuers[:0], p.Dequeuers[1:]...)
	dq.QuitChan <- true
	close(dq.QuitChan)
	return nil
}

// Shutdown all workers in the pool.
func (p *Pool) Shutdown() error {
	p.receivedShutdownSignal = true
	l := len(p.Dequeuers)
	for i := 0; i < l; i++ {
		err := p.RemoveDequeuer()
		if err != nil {
			return err
		}
	}
	p.wg.Wait()
	return nil
}

// Jitter returns a value that's around the given val, but not exactly it. The
// jitter is randomly chosen between 0.8 and 1.2 times the given value, evenly
// distributed.
func jitter(val float64) float64 {
	return val*0.8 + rand.Float64()*0.2*2*val
}

func (d *Dequeuer) Work(wg *sync.WaitGroup) {
	defer wg.Done()
	failedAcquireCount := 0
	waitDuration := time.Duration(jitter(float64(500 * time.Millisecond)))
	for {
		select {
		case <-d.QuitChan:
			log.Printf("worker %d quitting\n", d.ID)
			return

		case <-time.After(waitDuration):
			start := time.Now()
			qj, err := queued_jobs.Acquire()
			go metrics.Time("acquire.latency", time.Since(start))
			if err == nil {
				failedAcquireCount = 0
				waitDuration = time.Duration(0)
				err = d.W.DoWork(qj)
				if err != nil {
					log.Printf("worker: Error processing job %s: %s", qj.ID.String(), err)
					go metrics.Increment("dequeue." + string(qj.Name) + ".error")
				} else {
					go metrics.Increment("dequeue." + string(qj.Name) + ".success")
				}
			} else {
				dberr, ok := err.(*dberror.Error)
				if ok && dberr.Code == dberror.CodeLockNotAvailable {
					// SELECT 1 returned a record but another thread
					// got it. Don't sleep at all.
					go metrics.Increment("dequeue.nowait")
					failedAcquireCount = 0
					waitDuration = time.Duration(0)
					continue
				}

				failedAcquireCount++
				multiplier := math.Pow(d.sleepFactor, float64(failedAcquireCount))
				if multiplier > maxMultiplier {
					multiplier = maxMultiplier
				}
				multiplier = jitter(multiplier)
				waitDuration = 10 * time.Duration(multiplier) * time.Millisecond
			}
		}
	}
}
