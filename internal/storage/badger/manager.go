package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/storage"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	jobs      *JobStorage
	batches   *BatchStorage
	artifacts interfaces.ArtifactStore
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager. Artifacts live on the
// filesystem under the configured results directory; records live in
// badger.
func NewManager(logger arbor.ILogger, config *common.Config) (*Manager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		jobs:      NewJobStorage(db, nil, logger),
		batches:   NewBatchStorage(db, logger),
		artifacts: storage.NewArtifactStore(config.ResultsDir(), logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Jobs returns the concrete job storage, used by app wiring to attach
// the broker notifier.
func (m *Manager) Jobs() *JobStorage {
	return m.jobs
}

// JobStorage returns the job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// BatchStorage returns the batch storage interface
func (m *Manager) BatchStorage() interfaces.BatchStorage {
	return m.batches
}

// ArtifactStore returns the artifact store interface
func (m *Manager) ArtifactStore() interfaces.ArtifactStore {
	return m.artifacts
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
