package crawler

// Observer receives crawl progress events. Implementations are called from
// worker goroutines and must be safe for concurrent use.
type Observer interface {
	// DownloadStarted is called right before a download begins.
	DownloadStarted(host string)

	// DownloadFinished is called when a download returns; err is nil on success.
	DownloadFinished(host string, err error)

	// LinksExtracted is called with the number of links found in a document.
	LinksExtracted(n int)

	// LayerFinished is called after the barrier of a depth level released,
	// with the number of URLs queued for the next level.
	LayerFinished(depth int, discovered int)
}

// nopObserver discards every event.
type nopObserver struct{}

func (nopObserver) DownloadStarted(string) {}

func (nopObserver) DownloadFinished(string, error) {}

func (nopObserver) LinksExtracted(int) {}

func (nopObserver) LayerFinished(int, int) {}
