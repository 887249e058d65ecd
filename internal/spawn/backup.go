package spawn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	backupPrefix = "spawns-"
	backupSuffix = ".yml.zst"
	backupLayout = "20060102-150405.000"
)

// Backup сжимает текущий документ zstd и пишет его в dir.
// Возвращает путь к созданному файлу.
func (s *Store) Backup(dir string) (string, error) {
	data, err := s.Snapshot()
	if err != nil {
		s.metrics.observeBackup(err)
		return "", err
	}

	path, err := WriteBackup(dir, s.now(), data)
	s.metrics.observeBackup(err)
	if err != nil {
		s.logger.Error("Ошибка резервного копирования спавнов: %v", err)
		return "", err
	}

	s.logger.Debug("Резервная копия спавнов создана: %s", path)
	return path, nil
}

// WriteBackup сжимает data и сохраняет как spawns-<время UTC>.yml.zst.
func WriteBackup(dir string, at time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("создание каталога резервных копий %s: %w", dir, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()

	path := filepath.Join(dir, backupPrefix+at.UTC().Format(backupLayout)+backupSuffix)
	if err := os.WriteFile(path, enc.EncodeAll(data, nil), 0644); err != nil {
		return "", fmt.Errorf("запись резервной копии %s: %w", path, err)
	}
	return path, nil
}

// ReadBackup читает и распаковывает резервную копию.
func ReadBackup(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение резервной копии %s: %w", path, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("распаковка резервной копии %s: %w", path, err)
	}
	return data, nil
}

// ListBackups возвращает резервные копии в dir от старых к новым.
func ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		names = append(names, name)
	}
	// Имя содержит время в сортируемом формате
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// PruneBackups оставляет keep самых новых копий и возвращает число удалённых.
// keep <= 0 отключает очистку.
func PruneBackups(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	paths, err := ListBackups(dir)
	if err != nil {
		return 0, err
	}
	if len(paths) <= keep {
		return 0, nil
	}

	removed := 0
	for _, path := range paths[:len(paths)-keep] {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("удаление резервной копии %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

// RunBackups периодически делает резервную копию и чистит старые, пока ctx не отменён.
func (s *Store) RunBackups(ctx context.Context, dir string, every time.Duration, keep int) {
	if every <= 0 {
		s.logger.Info("Периодическое резервное копирование спавнов отключено")
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Backup(dir); err != nil {
				continue
			}
			if n, err := PruneBackups(dir, keep); err != nil {
				s.logger.Warn("Очистка резервных копий: %v", err)
			} else if n > 0 {
				s.logger.Debug("Удалено старых резервных копий: %d", n)
			}
		}
	}
}
