package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/conduit/pkg/config"
)

// reloadDebounce collapses the write bursts of a certificate renewal.
const reloadDebounce = 500 * time.Millisecond

// Reloader holds the current certificate pair and swaps it when the files
// change on disk.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewReloader loads the pair at certFile and keyFile. It fails if the pair
// does not load or the certificate is not currently valid.
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default().With("component", "tls"),
		now:      time.Now,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the pair from disk and swaps it in. On error the current
// certificate is kept.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate pair: %w", err)
	}

	now := r.now()
	if err := ValidateCertificate(&cert, now); err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	if x509Cert, err := leaf(&cert); err == nil {
		days, soon := DaysUntilExpiry(x509Cert, now)
		attrs := []any{
			"subject", x509Cert.Subject.CommonName,
			"serial", x509Cert.SerialNumber.String(),
			"expires_in_days", days,
			"expires_at", x509Cert.NotAfter.Format(time.RFC3339),
		}
		if soon {
			r.logger.Warn("certificate expiring soon", attrs...)
		} else {
			r.logger.Info("certificate loaded", attrs...)
		}
	}
	return nil
}

// Certificate returns the certificate currently served.
func (r *Reloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificate is a tls.Config.GetCertificate callback.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate(), nil
}

// Watch reloads the pair whenever either file is written, created or
// renamed into place, until ctx is done. The parent directories are
// watched so that atomic replacement by rename is seen.
func (r *Reloader) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create certificate watcher: %w", err)
	}
	defer fw.Close()

	files := make(map[string]bool, 2)
	for _, f := range []string{r.certFile, r.keyFile} {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", f, err)
		}
		files[abs] = true
	}
	dirs := make(map[string]bool, 2)
	for f := range files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
	}

	debounce := config.NewDebouncer(reloadDebounce)
	defer debounce.Stop()

	reload := func() {
		if err := r.Reload(); err != nil {
			r.logger.Error("certificate reload failed, keeping previous certificate", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || !files[abs] {
				continue
			}
			debounce.Trigger(reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("certificate watcher error", "error", err)
		}
	}
}
