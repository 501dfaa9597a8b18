package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/eval"
	"github.com/squidstack/squidflags/pkg/store"
)

// FilePathProvider reads a flag document from a local file and pushes changes
// through the configuration-fetched handler when the file is written.
type FilePathProvider struct {
	evaluating

	URI string

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func NewFilePathProvider() *FilePathProvider {
	return &FilePathProvider{
		evaluating: evaluating{evaluator: eval.NewJSONEvaluator(store.NewFlags())},
	}
}

// Setup loads the file named by key and starts watching it.
func (fp *FilePathProvider) Setup(ctx context.Context, key string, opts Options) error {
	if key != "" {
		fp.URI = key
	}
	fp.setOptions(opts)
	if _, err := fp.load(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	if err := watcher.Add(fp.URI); err != nil {
		watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", fp.URI, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	fp.watcher = watcher
	fp.cancel = cancel
	fp.done = make(chan struct{})
	go fp.watch(wctx)
	return nil
}

func (fp *FilePathProvider) Fetch(_ context.Context) error {
	_, err := fp.load()
	return err
}

func (fp *FilePathProvider) Configuration() (string, error) {
	return fp.evaluator.GetState(fp.URI)
}

func (fp *FilePathProvider) Close() error {
	var err error
	fp.once.Do(func() {
		if fp.cancel == nil {
			return
		}
		fp.cancel()
		err = fp.watcher.Close()
		<-fp.done
	})
	return err
}

func (fp *FilePathProvider) load() (int, error) {
	if fp.URI == "" {
		return 0, errors.New("no filepath string set")
	}
	raw, err := os.ReadFile(fp.URI)
	if err != nil {
		return 0, fmt.Errorf("unable to read flag file: %w", err)
	}
	notifications, err := fp.evaluator.SetState(fp.URI, string(raw))
	if err != nil {
		return 0, err
	}
	return len(notifications), nil
}

func (fp *FilePathProvider) watch(ctx context.Context) {
	defer close(fp.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fp.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// editors replace files on save, keep following the path
					if err := fp.watcher.Add(fp.URI); err != nil {
						log.Debugf("unable to re-watch %s: %v", fp.URI, err)
					}
				}
				continue
			}
			changed, err := fp.load()
			if err != nil {
				log.Errorf("flag file reload failed: %v", err)
				fp.reportError(err)
				continue
			}
			log.WithField("changed", changed).Info("flag values updated")
			fp.fetched(fp.URI, changed)
		case err, ok := <-fp.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", err)
			fp.reportError(err)
		}
	}
}
