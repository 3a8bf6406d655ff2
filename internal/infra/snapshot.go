package infra

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"maker_go/internal/domain"
)

// SnapshotStore persists the trading state for crash recovery. Writes
// go to a temp file first and are renamed into place, so a crash
// mid-write never corrupts the restorable state.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotStore creates a snapshot store for the given file path.
func NewSnapshotStore(path string, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		path:   path,
		logger: logger.With("module", "snapshot"),
	}
}

// Save writes the snapshot atomically.
func (s *SnapshotStore) Save(snap *domain.StateSnapshot) error {
	snap.Version = domain.SnapshotVersion
	snap.SavedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.logger.Info("State snapshot saved",
		slog.String("path", s.path),
		slog.Int("active_orders", len(snap.ActiveOrders)))
	return nil
}

// Load restores the last snapshot. A missing file returns (nil, nil):
// fresh start. A corrupt or version-mismatched file is renamed aside
// and also results in a fresh start, never an abort.
func (s *SnapshotStore) Load() (*domain.StateSnapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap domain.StateSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.quarantine("corrupt", err)
		return nil, nil
	}
	if snap.Version != domain.SnapshotVersion {
		s.quarantine("version_mismatch",
			fmt.Errorf("snapshot version %d, expected %d", snap.Version, domain.SnapshotVersion))
		return nil, nil
	}

	s.logger.Info("State snapshot restored",
		slog.String("path", s.path),
		slog.Time("saved_at", snap.SavedAt),
		slog.Int("active_orders", len(snap.ActiveOrders)))
	return &snap, nil
}

// quarantine moves an unusable snapshot aside so the evidence survives.
func (s *SnapshotStore) quarantine(reason string, cause error) {
	aside := fmt.Sprintf("%s.%s.%d", s.path, reason, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Error("Failed to move unusable snapshot aside", slog.Any("error", err))
		return
	}
	s.logger.Warn("Unusable snapshot moved aside, starting fresh",
		slog.String("moved_to", aside),
		slog.Any("cause", cause))
}
