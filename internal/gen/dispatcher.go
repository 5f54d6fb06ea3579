package gen

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PostStore is the slice of persistence the workers need: inserting the
// posts and comments they generate. Nil disables persistence (results are
// still delivered).
type PostStore interface {
	CreatePost(ctx context.Context, botID int64, title, body string) (int64, error)
	CreateComment(ctx context.Context, botID, parentID int64, body string) (int64, error)
}

// Dispatcher runs a small worker pool between the game loop and the text
// service. Requests are dispatched without blocking; results come back on a
// channel drained in the input phase.
type Dispatcher struct {
	client *Client
	store  PostStore
	log    *zap.Logger

	reqCh chan dispatchJob
	resCh chan Result
	wg    sync.WaitGroup
}

type dispatchJob struct {
	req   Request
	botID int64
}

func NewDispatcher(client *Client, store PostStore, workers, queueSize int, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		client: client,
		store:  store,
		log:    log,
		reqCh:  make(chan dispatchJob, queueSize),
		resCh:  make(chan Result, queueSize),
	}
	if workers < 1 {
		workers = 1
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// TryDispatch queues a generation request. Returns false when the queue is
// full; the caller simply skips the utterance this time.
func (d *Dispatcher) TryDispatch(req Request, botID int64) bool {
	select {
	case d.reqCh <- dispatchJob{req: req, botID: botID}:
		return true
	default:
		return false
	}
}

// Results returns the channel the input phase drains.
func (d *Dispatcher) Results() <-chan Result { return d.resCh }

// Close stops accepting requests and waits for in-flight work.
func (d *Dispatcher) Close() {
	close(d.reqCh)
	d.wg.Wait()
	close(d.resCh)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.reqCh {
		res := d.client.Generate(context.Background(), job.req)
		res.BotID = job.botID

		// Persist before delivering, so the result can carry the post id
		// and the poller can dedupe it.
		if d.store != nil && !res.Fallback && job.botID != 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			var err error
			switch res.Kind {
			case "post":
				res.PostID, err = d.store.CreatePost(ctx, job.botID, res.Title, res.Text)
			case "comment":
				res.PostID, err = d.store.CreateComment(ctx, job.botID, res.ReplyToID, res.Text)
			}
			cancel()
			if err != nil {
				d.log.Warn("post persist failed",
					zap.Int64("bot_id", job.botID), zap.Error(err))
			}
		}

		d.resCh <- res
	}
}
