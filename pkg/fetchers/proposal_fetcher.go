package fetchers

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/events"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
)

const DefaultInterval = 5 * time.Second

type ProposalSource interface {
	FindProposals(ctx context.Context) ([]tequilapi.Proposal, error)
}

// ProposalFetcher polls the client API for proposals while started and
// publishes every result.
type ProposalFetcher interface {
	Start()
	Stop()
	Fetch(ctx context.Context) ([]tequilapi.Proposal, error)
	OnFetchedProposals(callback func([]tequilapi.Proposal)) events.Unsubscribe
	OnFetchingError(callback func(error)) events.Unsubscribe
}

type proposalFetcher struct {
	source   ProposalSource
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	mutex    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	fetched *events.Registry[[]tequilapi.Proposal]
	failed  *events.Registry[error]
}

func NewProposalFetcher(source ProposalSource, interval time.Duration, logger logging.Logger) ProposalFetcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	onPanic := func(name string, err error) {
		logger.Errorf("Proposal fetcher callback failed, event: %s, error: %v", name, err)
	}
	return &proposalFetcher{
		source:   source,
		interval: interval,
		timeout:  interval,
		logger:   logger,
		fetched:  events.NewRegistry[[]tequilapi.Proposal]("proposals-fetched", onPanic),
		failed:   events.NewRegistry[error]("proposals-fetching-error", onPanic),
	}
}

// Start begins polling immediately. Calling it while running does nothing.
func (f *proposalFetcher) Start() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.running {
		return
	}
	f.logger.Infof("Starting proposal fetcher, interval: %v", f.interval)

	f.running = true
	f.stopChan = make(chan struct{})
	f.wg.Add(1)
	go f.loop(f.stopChan)
}

// Stop halts polling and waits for an in-flight fetch to finish.
func (f *proposalFetcher) Stop() {
	f.mutex.Lock()
	if !f.running {
		f.mutex.Unlock()
		return
	}
	f.running = false
	close(f.stopChan)
	f.mutex.Unlock()

	f.wg.Wait()
	f.logger.Infof("Proposal fetcher stopped")
}

// Fetch performs one fetch outside the polling schedule and publishes the result.
func (f *proposalFetcher) Fetch(ctx context.Context) ([]tequilapi.Proposal, error) {
	proposals, err := f.source.FindProposals(ctx)
	if err != nil {
		f.failed.Emit(err)
		return nil, err
	}
	f.logger.Debugf("Fetched proposals, count: %d", len(proposals))
	f.fetched.Emit(proposals)
	return proposals, nil
}

func (f *proposalFetcher) OnFetchedProposals(callback func([]tequilapi.Proposal)) events.Unsubscribe {
	return f.fetched.Subscribe(callback)
}

func (f *proposalFetcher) OnFetchingError(callback func(error)) events.Unsubscribe {
	return f.failed.Subscribe(callback)
}

func (f *proposalFetcher) loop(stopChan chan struct{}) {
	defer f.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		f.fetchOnce(ctx)

		select {
		case <-ticker.C:
		case <-stopChan:
			return
		}
	}
}

func (f *proposalFetcher) fetchOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	proposals, err := f.source.FindProposals(fetchCtx)

	// a fetch cancelled by Stop is not reported
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		f.logger.Debugf("Proposal fetch failed: %v", err)
		f.failed.Emit(err)
		return
	}
	f.fetched.Emit(proposals)
}
