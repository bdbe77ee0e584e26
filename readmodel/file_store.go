package readmodel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"priceflow/dates"
	"priceflow/logger"
)

// FileStore keeps each (model, date) collection as a JSON file under a
// dated directory tree: root/YYYY/MM/DD/<model>.json. Writes go through a
// temp file and rename so readers never observe a partial payload.
type FileStore struct {
	root string
	log  *logger.Log
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, log: logger.GetLogger()}
}

func (fs *FileStore) path(model string, date dates.Date) string {
	return filepath.Join(fs.root,
		fmt.Sprintf("%04d", date.Year),
		fmt.Sprintf("%02d", int(date.Month)),
		fmt.Sprintf("%02d", date.Day),
		model+".json")
}

func (fs *FileStore) Read(ctx context.Context, model string, date dates.Date) ([]byte, bool, error) {
	data, err := os.ReadFile(fs.path(model, date))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s collection: %w", model, err)
	}
	return data, true, nil
}

func (fs *FileStore) Write(ctx context.Context, model string, date dates.Date, payload []byte) error {
	path := fs.path(model, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), model+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace collection file: %w", err)
	}

	logger.IncrementReadModelWrite(len(payload))
	fs.log.WithComponent("read_model_store").WithFields(logger.Fields{
		"model": model,
		"date":  date.String(),
		"bytes": len(payload),
	}).Debug("collection written")
	return nil
}
